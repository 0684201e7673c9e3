package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultEmailJSEndpoint is the EmailJS REST send endpoint.
const DefaultEmailJSEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// EmailJSConfig identifies the EmailJS service, template and account keys.
// The public key is designed for client-side use; the access token is only
// needed when the account enforces private-key access for API calls.
type EmailJSConfig struct {
	ServiceID   string
	TemplateID  string
	PublicKey   string
	AccessToken string
	Endpoint    string
	Timeout     time.Duration
}

// EmailJS sends contact messages through the EmailJS REST API.
type EmailJS struct {
	cfg    EmailJSConfig
	client *http.Client
}

type emailJSRequest struct {
	ServiceID      string  `json:"service_id"`
	TemplateID     string  `json:"template_id"`
	UserID         string  `json:"user_id"`
	AccessToken    string  `json:"accessToken,omitempty"`
	TemplateParams Payload `json:"template_params"`
}

// ServiceError is a non-2xx answer from the delivery service.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("emailjs: status %d", e.StatusCode)
	}
	return fmt.Sprintf("emailjs: status %d: %s", e.StatusCode, e.Body)
}

// RateLimited reports whether the service rejected the call for rate limiting.
func (e *ServiceError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// NewEmailJS builds a dispatcher. A nil client gets a default one honouring
// cfg.Timeout.
func NewEmailJS(cfg EmailJSConfig, client *http.Client) (*EmailJS, error) {
	if cfg.ServiceID == "" || cfg.TemplateID == "" || cfg.PublicKey == "" {
		return nil, errors.New("emailjs: service id, template id and public key are required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEmailJSEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &EmailJS{cfg: cfg, client: client}, nil
}

// Send performs exactly one request. There is no retry.
func (e *EmailJS) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(emailJSRequest{
		ServiceID:      e.cfg.ServiceID,
		TemplateID:     e.cfg.TemplateID,
		UserID:         e.cfg.PublicKey,
		AccessToken:    e.cfg.AccessToken,
		TemplateParams: p,
	})
	if err != nil {
		return fmt.Errorf("emailjs: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("emailjs: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("emailjs: sending request: %w", err)
	}
	defer resp.Body.Close()

	text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServiceError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	return nil
}
