package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

const schemaPrefix = "#/components/schemas/"

// OpenAPI accumulates the API document as routes are registered.
type OpenAPI struct {
	mu      sync.RWMutex
	doc     *openapi3.T
	schemas map[reflect.Type]*openapi3.SchemaRef
}

func New(title, version string) *OpenAPI {
	return &OpenAPI{
		doc: &openapi3.T{
			OpenAPI: "3.0.3",
			Info: &openapi3.Info{
				Title:   title,
				Version: version,
			},
			Paths:      openapi3.NewPaths(),
			Components: &openapi3.Components{Schemas: make(openapi3.Schemas)},
		},
		schemas: make(map[reflect.Type]*openapi3.SchemaRef),
	}
}

func (o *OpenAPI) Description(desc string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doc.Info.Description = desc
	return o
}

func (o *OpenAPI) Server(url, description string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doc.Servers = append(o.doc.Servers, &openapi3.Server{URL: url, Description: description})
	return o
}

func (o *OpenAPI) Tag(name, description string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doc.Tags = append(o.doc.Tags, &openapi3.Tag{Name: name, Description: description})
	return o
}

func (o *OpenAPI) BearerAuth(name, description string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.doc.Components.SecuritySchemes == nil {
		o.doc.Components.SecuritySchemes = make(openapi3.SecuritySchemes)
	}
	o.doc.Components.SecuritySchemes[name] = &openapi3.SecuritySchemeRef{
		Value: openapi3.NewJWTSecurityScheme().WithDescription(description),
	}
	return o
}

func (o *OpenAPI) Doc() *openapi3.T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.doc
}

// Validate checks the assembled document against the OpenAPI 3 rules.
func (o *OpenAPI) Validate(ctx context.Context) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.doc.Validate(ctx)
}

func (o *OpenAPI) JSON() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return json.MarshalIndent(o.doc, "", "  ")
}

func (o *OpenAPI) YAML() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	intermediate, err := o.doc.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(intermediate)
}

func (o *OpenAPI) JSONHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := o.JSON()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to render API document")
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func (o *OpenAPI) YAMLHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := o.YAML()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to render API document")
		}
		return c.Blob(http.StatusOK, "application/yaml", data)
	}
}

func (o *OpenAPI) SwaggerUIHandler(specPath string) echo.HandlerFunc {
	page := `<!DOCTYPE html>
<html>
<head>
    <title>` + o.Doc().Info.Title + `</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({ url: "` + specPath + `", dom_id: '#swagger-ui' });
    </script>
</body>
</html>`
	return func(c echo.Context) error {
		return c.HTML(http.StatusOK, page)
	}
}

// Mount serves the document as JSON and YAML plus a Swagger UI page under prefix.
func (o *OpenAPI) Mount(e *echo.Echo, prefix string) {
	prefix = strings.TrimSuffix(prefix, "/")
	e.GET(prefix+"/openapi.json", o.JSONHandler())
	e.GET(prefix+"/openapi.yaml", o.YAMLHandler())
	e.GET(prefix+"/docs", o.SwaggerUIHandler(prefix+"/openapi.json"))
}

func (o *OpenAPI) Document(method, path string) *RouteBuilder {
	rb := &RouteBuilder{
		openapi:   o,
		method:    strings.ToUpper(method),
		path:      path,
		operation: openapi3.NewOperation(),
	}
	rb.operation.Responses = openapi3.NewResponses()
	rb.extractPathParams()
	return rb
}

func (o *OpenAPI) addOperation(method, path string, op *openapi3.Operation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doc.AddOperation(toOpenAPIPath(path), method, op)
}

func toOpenAPIPath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if name, ok := strings.CutPrefix(part, ":"); ok {
			parts[i] = "{" + name + "}"
		}
	}
	return strings.Join(parts, "/")
}

// schemaFor returns a reference for named structs and an inline schema otherwise.
func (o *OpenAPI) schemaFor(example any) *openapi3.SchemaRef {
	o.mu.Lock()
	defer o.mu.Unlock()

	if example == nil {
		return openapi3.NewObjectSchema().NewRef()
	}
	return o.typeSchema(reflect.TypeOf(example))
}

func (o *OpenAPI) typeSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.Pointer:
		ref := o.typeSchema(t.Elem())
		if ref.Ref != "" {
			return &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{ref}, Nullable: true}}
		}
		ref.Value.Nullable = true
		return ref
	case reflect.String:
		return openapi3.NewStringSchema().NewRef()
	case reflect.Bool:
		return openapi3.NewBoolSchema().NewRef()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return openapi3.NewIntegerSchema().NewRef()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return openapi3.NewIntegerSchema().WithMin(0).NewRef()
	case reflect.Float32, reflect.Float64:
		return openapi3.NewFloat64Schema().NewRef()
	case reflect.Slice, reflect.Array:
		schema := openapi3.NewArraySchema()
		schema.Items = o.typeSchema(t.Elem())
		return schema.NewRef()
	case reflect.Map:
		schema := openapi3.NewObjectSchema()
		schema.AdditionalProperties = openapi3.AdditionalProperties{Schema: o.typeSchema(t.Elem())}
		return schema.NewRef()
	case reflect.Struct:
		return o.structSchema(t)
	default:
		return openapi3.NewObjectSchema().NewRef()
	}
}

func (o *OpenAPI) structSchema(t reflect.Type) *openapi3.SchemaRef {
	if t.PkgPath() == "time" && t.Name() == "Time" {
		return openapi3.NewDateTimeSchema().NewRef()
	}
	if t.Name() == "" {
		schema := openapi3.NewObjectSchema()
		o.fillStruct(schema, t)
		return schema.NewRef()
	}

	if ref, ok := o.schemas[t]; ok {
		return openapi3.NewSchemaRef(ref.Ref, ref.Value)
	}

	name := t.Name()
	if _, taken := o.doc.Components.Schemas[name]; taken {
		name = pkgName(t) + name
	}

	// Registered before filling so self-referencing types terminate.
	schema := openapi3.NewObjectSchema()
	ref := openapi3.NewSchemaRef(schemaPrefix+name, schema)
	o.schemas[t] = ref
	o.doc.Components.Schemas[name] = schema.NewRef()
	o.fillStruct(schema, t)

	return openapi3.NewSchemaRef(ref.Ref, schema)
}

func (o *OpenAPI) fillStruct(schema *openapi3.Schema, t reflect.Type) {
	schema.Properties = make(openapi3.Schemas)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}

		name, opts, _ := strings.Cut(tag, ",")

		if field.Anonymous && name == "" {
			embedded := field.Type
			if embedded.Kind() == reflect.Pointer {
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				inner := openapi3.NewObjectSchema()
				o.fillStruct(inner, embedded)
				for prop, ref := range inner.Properties {
					schema.Properties[prop] = ref
				}
				schema.Required = append(schema.Required, inner.Required...)
				continue
			}
		}

		if name == "" {
			name = field.Name
		}

		ref := o.typeSchema(field.Type)
		if doc := field.Tag.Get("doc"); doc != "" {
			if ref.Ref != "" {
				ref = &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{ref}}}
			}
			ref.Value.Description = doc
		}
		schema.Properties[name] = ref

		if !strings.Contains(opts, "omitempty") {
			schema.Required = append(schema.Required, name)
		}
	}
}

func pkgName(t reflect.Type) string {
	path := t.PkgPath()
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		return ""
	}
	return strings.ToUpper(path[:1]) + path[1:]
}
