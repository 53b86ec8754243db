// Package identity talks to the hosted identity provider (Firebase Identity
// Toolkit REST API). Each operation is one outbound call through a circuit
// breaker; there is no retry.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"teamup/logging"
	"teamup/metrics"
)

const DefaultBaseURL = "https://identitytoolkit.googleapis.com"

// Account is the result of a successful sign-up or sign-in.
type Account struct {
	UserID       string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "identity-provider",
			MaxRequests: 1,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
			IsSuccessful: func(err error) bool {
				var pe *ProviderError
				return err == nil || (errors.As(err, &pe) && pe.clientSide())
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Logger.Warnf("circuit breaker %q changed from %s to %s", name, from, to)
			},
		}),
	}
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*Account, error) {
	var acc Account
	err := c.call(ctx, "signUp", map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &acc)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Account, error) {
	var acc Account
	err := c.call(ctx, "signInWithPassword", map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &acc)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *Client) SendVerification(ctx context.Context, idToken string) error {
	return c.call(ctx, "sendOobCode", map[string]interface{}{
		"requestType": "VERIFY_EMAIL",
		"idToken":     idToken,
	}, nil)
}

// CheckVerified reports whether the account behind idToken has a verified
// email. An unknown account counts as unverified.
func (c *Client) CheckVerified(ctx context.Context, idToken string) (bool, error) {
	var out struct {
		Users []struct {
			EmailVerified bool `json:"emailVerified"`
		} `json:"users"`
	}
	if err := c.call(ctx, "lookup", map[string]interface{}{"idToken": idToken}, &out); err != nil {
		return false, err
	}
	if len(out.Users) == 0 {
		return false, nil
	}
	return out.Users[0].EmailVerified, nil
}

func (c *Client) ResetPassword(ctx context.Context, email string) error {
	return c.call(ctx, "sendOobCode", map[string]interface{}{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

func (c *Client) call(ctx context.Context, op string, payload, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, op, payload, out)
	})
	metrics.IdentityCallsTotal.WithLabelValues(op, outcome(err)).Inc()

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, op string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	endpoint := fmt.Sprintf("%s/v1/accounts:%s?key=%s", c.baseURL, op, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read identity response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error.Message != "" {
			if eb.Error.Status == 0 {
				eb.Error.Status = resp.StatusCode
			}
			return &eb.Error
		}
		return &ProviderError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}

func outcome(err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &pe) && pe.clientSide():
		return "rejected"
	default:
		return "error"
	}
}
