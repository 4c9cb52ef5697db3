package dispense

import (
	"strings"

	"github.com/mileusna/useragent"
)

const maxDeviceLength = 255

// DescribeDevice builds the label stored against a consumed session from the
// pump identity and its User-Agent header.
func DescribeDevice(pumpID, userAgent string) string {
	parts := make([]string, 0, 2)
	if pumpID != "" {
		parts = append(parts, "pump "+pumpID)
	}

	if userAgent != "" {
		ua := useragent.Parse(userAgent)

		client := ua.Name
		if client != "" && ua.Version != "" {
			client += " " + ua.Version
		}
		if ua.OS != "" {
			if client != "" {
				client += " on "
			}
			client += ua.OS
		}
		if client == "" {
			client = userAgent
		}
		parts = append(parts, "("+client+")")
	}

	if len(parts) == 0 {
		return "unknown device"
	}

	desc := strings.Join(parts, " ")
	if len(desc) > maxDeviceLength {
		desc = desc[:maxDeviceLength]
	}
	return desc
}
