package gatewayhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/payforms/internal/payform/domain"
	"go.uber.org/zap"
)

// TokenStrategy decides when a cached token may be used.
type TokenStrategy int

const (
	// TrustCache uses the cached token until an auth failure proves it stale.
	TrustCache TokenStrategy = iota
	// TrackExpiry also refreshes once the stored expiry (minus the refresh buffer) has passed.
	TrackExpiry
)

// CredentialStyle selects the token request body.
type CredentialStyle int

const (
	// AppCredentials posts {app_id, app_secret}.
	AppCredentials CredentialStyle = iota
	// ClientCredentials posts a standard OAuth2 client_credentials grant.
	ClientCredentials
)

const (
	argAccessToken    = "access_token"
	argTokenType      = "token_type"
	argTokenExpiresAt = "token_expires_at"
)

type tokenData struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type tokenResponse struct {
	Data *tokenData `json:"data"`
	tokenData
}

// AccessToken returns the cached token or fetches a new one.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	token, _ := c.GetArg(argAccessToken).(string)
	if token != "" {
		if c.opts.Tokens == TrustCache {
			return token, nil
		}
		if expiresAt, ok := c.tokenExpiry(); ok && c.now().Before(expiresAt) {
			return token, nil
		}
	}
	return c.RefreshAccessToken(ctx)
}

func (c *Client) tokenExpiry() (time.Time, bool) {
	raw, _ := c.GetArg(argTokenExpiresAt).(string)
	if raw == "" {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// RefreshAccessToken requests a new token and caches it in the payform arguments.
func (c *Client) RefreshAccessToken(ctx context.Context) (string, error) {
	log := c.Logger(ctx)

	var args HubArgs
	if err := c.Args(&args); err != nil {
		c.metrics().RecordTokenRefresh(ctx, c.ID(), "not_configured")
		return "", fmt.Errorf("%w: %w", domain.ErrUpstreamAuth, err)
	}

	var body any
	switch c.opts.Credentials {
	case ClientCredentials:
		body = map[string]any{
			"grant_type":    "client_credentials",
			"client_id":     args.ClientID,
			"client_secret": args.ClientSecret,
			"scope":         c.opts.Scope,
		}
	default:
		body = map[string]any{
			"app_id":     args.ClientID,
			"app_secret": args.ClientSecret,
		}
	}

	data, err := c.requestToken(ctx, joinURL(args.URL, c.opts.TokenPath), body)
	if err != nil {
		c.metrics().RecordTokenRefresh(ctx, c.ID(), "error")
		log.Error("gatewayhub.token.refresh_failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", domain.ErrUpstreamAuth, err)
	}

	tokenType := strings.TrimSpace(data.TokenType)
	if tokenType == "" {
		tokenType = "Bearer"
	}
	if err := c.SetArg(ctx, argAccessToken, data.AccessToken); err != nil {
		return "", err
	}
	if err := c.SetArg(ctx, argTokenType, tokenType); err != nil {
		return "", err
	}
	if data.ExpiresIn > 0 {
		buffer := c.opts.RefreshBuffer
		if buffer <= 0 {
			buffer = c.Deps().Settings.Get().TokenRefreshBuffer
		}
		expiresAt := c.now().Add(time.Duration(data.ExpiresIn)*time.Second - buffer)
		if err := c.SetArg(ctx, argTokenExpiresAt, expiresAt.UTC().Format(time.RFC3339)); err != nil {
			return "", err
		}
	} else if c.opts.Tokens == TrackExpiry {
		if err := c.SetArg(ctx, argTokenExpiresAt, nil); err != nil {
			return "", err
		}
	}

	c.metrics().RecordTokenRefresh(ctx, c.ID(), "ok")
	log.Info("gatewayhub.token.refreshed", zap.Int64("expires_in", data.ExpiresIn))
	return data.AccessToken, nil
}

func (c *Client) requestToken(ctx context.Context, url string, body any) (*tokenData, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req, "gatewayhub.token")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, truncate(raw))
	}

	var decoded tokenResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("invalid token response: %w", err)
	}
	data := decoded.tokenData
	if decoded.Data != nil {
		data = *decoded.Data
	}
	if strings.TrimSpace(data.AccessToken) == "" {
		return nil, fmt.Errorf("invalid token response: missing access_token")
	}
	return &data, nil
}

// InvalidateToken clears the cached token so the next AccessToken call refreshes.
func (c *Client) InvalidateToken(ctx context.Context) error {
	if err := c.SetArg(ctx, argAccessToken, nil); err != nil {
		return err
	}
	if err := c.SetArg(ctx, argTokenExpiresAt, nil); err != nil {
		return err
	}
	c.Logger(ctx).Warn("gatewayhub.token.invalidated")
	return nil
}
