package qrsession

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidPayload = errors.New("QR payload is malformed")

// Payload is the structure embedded in the QR image.
type Payload struct {
	CorID          string    `json:"cor_id"`
	TOTPCode       string    `json:"totp_code"`
	TimestampToken string    `json:"timestamp_token"`
	SessionToken   string    `json:"session_token"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Encode returns the canonical string form. Field order is fixed by the struct
// and the expiry is rendered in UTC.
func (p Payload) Encode() (string, error) {
	p.ExpiresAt = p.ExpiresAt.UTC()
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func ParsePayload(data string) (*Payload, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, ErrInvalidPayload
	}

	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, ErrInvalidPayload
	}

	if p.CorID == "" || p.TOTPCode == "" || p.TimestampToken == "" || p.SessionToken == "" || p.ExpiresAt.IsZero() {
		return nil, ErrInvalidPayload
	}

	return &p, nil
}
