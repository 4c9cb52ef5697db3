package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

var (
	ErrMissingFromAddress = errors.New("MAIL_FROM_ADDRESS is required")
	ErrNoRecipients       = errors.New("MAIL_ALERT_TO has no recipients")
)

const alertTemplate = `{{.Body}}

Service: {{.App}} ({{.Version}})
Sent:    {{.SentAt}}
`

type alertData struct {
	Body    string
	App     string
	Version string
	SentAt  string
}

// Sender is the part of the go-mail client the service uses.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Service sends operator alerts. A disabled service accepts alerts and drops them.
type Service struct {
	config  config.MailConfig
	app     config.AppConfig
	client  Sender
	tmpl    *template.Template
	logger  *logging.Service
	enabled bool
}

func NewService(cfg config.MailConfig, app config.AppConfig, logger *logging.Service) (*Service, error) {
	if !cfg.Enabled {
		logger.Info("mail alerts disabled")
		return newService(cfg, app, nil, logger)
	}

	logger.Info("initializing mail service",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("encryption", cfg.Encryption),
		zap.String("from_address", cfg.FromAddress))

	if cfg.FromAddress == "" {
		return nil, ErrMissingFromAddress
	}
	if len(cfg.AlertTo) == 0 {
		return nil, ErrNoRecipients
	}

	client, err := mail.NewClient(cfg.Host, clientOptions(cfg)...)
	if err != nil {
		logger.Error("failed to create mail client",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return newService(cfg, app, client, logger)
}

// NewServiceWithClient builds an enabled service around an existing sender.
func NewServiceWithClient(cfg config.MailConfig, app config.AppConfig, client Sender, logger *logging.Service) (*Service, error) {
	cfg.Enabled = true
	if cfg.FromAddress == "" {
		return nil, ErrMissingFromAddress
	}
	return newService(cfg, app, client, logger)
}

func newService(cfg config.MailConfig, app config.AppConfig, client Sender, logger *logging.Service) (*Service, error) {
	tmpl, err := template.New("alert").Parse(alertTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse alert template: %w", err)
	}

	return &Service{
		config:  cfg,
		app:     app,
		client:  client,
		tmpl:    tmpl,
		logger:  logger,
		enabled: cfg.Enabled && client != nil,
	}, nil
}

func clientOptions(cfg config.MailConfig) []mail.Option {
	opts := []mail.Option{mail.WithPort(cfg.Port)}

	switch cfg.Encryption {
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}

	return opts
}

func (s *Service) Enabled() bool {
	return s.enabled
}

func (s *Service) newMessage() (*mail.Msg, error) {
	message := mail.NewMsg()

	from := s.config.FromAddress
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromAddress)
	}
	if err := message.From(from); err != nil {
		return nil, fmt.Errorf("failed to set FROM address: %w", err)
	}
	return message, nil
}

func (s *Service) render(body string) (string, error) {
	var buf bytes.Buffer
	err := s.tmpl.Execute(&buf, alertData{
		Body:    strings.TrimSpace(body),
		App:     s.app.Name,
		Version: s.app.Version,
		SentAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render alert: %w", err)
	}
	return buf.String(), nil
}

// SendAlert mails the configured operators.
func (s *Service) SendAlert(ctx context.Context, subject, body string) error {
	if !s.enabled {
		s.logger.Debug("dropping alert, mail disabled", zap.String("subject", subject))
		return nil
	}

	message, err := s.newMessage()
	if err != nil {
		return err
	}
	if err := message.To(s.config.AlertTo...); err != nil {
		s.logger.Error("failed to set alert recipients",
			zap.Strings("recipients", s.config.AlertTo),
			zap.Error(err))
		return fmt.Errorf("failed to set TO addresses: %w", err)
	}
	message.Subject(subject)

	rendered, err := s.render(body)
	if err != nil {
		return err
	}
	message.SetBodyString(mail.TypeTextPlain, rendered)

	start := time.Now()
	if err := s.client.DialAndSendWithContext(ctx, message); err != nil {
		s.logger.Error("failed to send alert",
			zap.String("subject", subject),
			zap.Duration("attempt_duration", time.Since(start)),
			zap.Error(err))
		return err
	}

	s.logger.Info("alert sent",
		zap.String("subject", subject),
		zap.Strings("recipients", s.config.AlertTo),
		zap.Duration("send_duration", time.Since(start)))
	return nil
}
