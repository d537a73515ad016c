package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/frame"
	"github.com/ZenHive/websockex-nova-go/transport"
)

// NoopAuthHandler answers every AuthHandler call with "nothing to do",
// the Builder's fallback for adapters that speak to unauthenticated
// endpoints.
type noopAuthHandler struct{}

// NewNoopAuthHandler returns an AuthHandler that never emits auth data and
// never considers the connection in need of reauthentication.
func NewNoopAuthHandler() AuthHandler { return noopAuthHandler{} }

func (noopAuthHandler) GenerateAuthData() (frame.Frame, error) {
	return frame.Frame{}, fmt.Errorf("handlers: noop auth handler has no credentials to send")
}

func (noopAuthHandler) HandleAuthResponse(frame.Frame) (string, error) { return "", nil }

func (noopAuthHandler) NeedsReauthentication() bool { return false }

func (noopAuthHandler) Authenticate(transport.StreamRef, config.Credentials) Result { return Ok() }

// authRequest is the JSON envelope DefaultAuthHandler sends as its
// GenerateAuthData frame — a bootstrap-token exchange, the same shape as
// the teacher's registration.RegistrationRequest (bootstrap_token in,
// api_token/JWT back), adapted from an HTTP POST body to a WebSocket text
// frame since the connection itself is the transport here.
type authRequest struct {
	Type      string `json:"type"`
	APIKey    string `json:"api_key,omitempty"`
	APISecret string `json:"api_secret,omitempty"`
}

// authResponse is the shape DefaultAuthHandler expects back: an error, or a
// bearer token it can inspect for expiry via golang-jwt.
type authResponse struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Error string `json:"error,omitempty"`
}

// DefaultAuthHandler implements a single bootstrap-credentials-for-token
// exchange: GenerateAuthData sends the configured credentials as a JSON
// frame, HandleAuthResponse parses the reply and decodes the returned JWT
// (unverified — the adapter's concern is the exp claim, not the signature,
// since the remote already authenticated the request) to track its
// expiry, and NeedsReauthentication reports true once the token is within
// reauthThreshold of expiring.
type DefaultAuthHandler struct {
	creds           config.Credentials
	reauthThreshold time.Duration

	token     string
	expiresAt time.Time
}

// NewDefaultAuthHandler builds a DefaultAuthHandler that reauthenticates
// reauthThreshold before the current token's exp claim.
func NewDefaultAuthHandler(creds config.Credentials, reauthThreshold time.Duration) *DefaultAuthHandler {
	return &DefaultAuthHandler{creds: creds, reauthThreshold: reauthThreshold}
}

func (h *DefaultAuthHandler) GenerateAuthData() (frame.Frame, error) {
	req := authRequest{
		Type:      "auth",
		APIKey:    h.creds["api_key"],
		APISecret: h.creds["api_secret"],
	}
	b, err := json.Marshal(req)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("auth handler: encoding auth request: %w", err)
	}
	return frame.NewText(string(b)), nil
}

func (h *DefaultAuthHandler) HandleAuthResponse(f frame.Frame) (string, error) {
	var resp authResponse
	if err := json.Unmarshal([]byte(f.Text), &resp); err != nil {
		return "", fmt.Errorf("auth handler: decoding auth response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("auth handler: remote rejected credentials: %s", resp.Error)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.Token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			h.expiresAt = exp.Time
		}
	}

	h.token = resp.Token
	return h.token, nil
}

func (h *DefaultAuthHandler) NeedsReauthentication() bool {
	if h.token == "" {
		return true
	}
	if h.expiresAt.IsZero() {
		return false
	}
	return time.Now().Add(h.reauthThreshold).After(h.expiresAt)
}

func (h *DefaultAuthHandler) Authenticate(_ transport.StreamRef, creds config.Credentials) Result {
	h.creds = creds
	return Ok()
}
