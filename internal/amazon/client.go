package amazon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/adsconnect/adsconnect/internal/config"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Amazon access tokens are issued for one hour when expires_in is absent.
const defaultTokenLifetime = time.Hour

// Client is the interface for talking to Login with Amazon and the Advertising API.
type Client interface {
	ClientID() string
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
	ListProfiles(ctx context.Context, accessToken string) ([]Profile, error)
	ListCampaigns(ctx context.Context, accessToken, profileID string) ([]Campaign, error)
}

// HTTPClient implements Client over HTTPS.
type HTTPClient struct {
	oauth      *oauth2.Config
	clientID   string
	apiBaseURL string
	maxRetries int
	retryWait  time.Duration
	client     *http.Client
	logger     *zap.Logger
}

// NewHTTPClient creates a new Amazon HTTP client.
func NewHTTPClient(cfg config.AmazonConfig, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{cfg.Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		clientID:   cfg.ClientID,
		apiBaseURL: cfg.APIBaseURL,
		maxRetries: cfg.MaxRetries,
		retryWait:  500 * time.Millisecond,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("amazon"),
	}
}

func (c *HTTPClient) ClientID() string {
	return c.clientID
}

// AuthorizeURL builds the Login with Amazon consent URL carrying state.
func (c *HTTPClient) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode performs the authorization-code grant. It is never retried:
// a code is single use and the provider may have consumed it.
func (c *HTTPClient) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, grantError(err)
	}
	return tokenFromOAuth(tok), nil
}

// RefreshToken performs the refresh-token grant, retrying transient failures.
func (c *HTTPClient) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	var out *Token
	err := c.retry(ctx, "refresh_token", func() error {
		src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			return grantError(err)
		}
		out = tokenFromOAuth(tok)
		if out.RefreshToken == refreshToken {
			out.RefreshToken = ""
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) ListProfiles(ctx context.Context, accessToken string) ([]Profile, error) {
	var raw []profileJSON
	if err := c.getJSON(ctx, "/v2/profiles", nil, accessToken, "", &raw); err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(raw))
	for _, p := range raw {
		profiles = append(profiles, p.toProfile())
	}
	return profiles, nil
}

func (c *HTTPClient) ListCampaigns(ctx context.Context, accessToken, profileID string) ([]Campaign, error) {
	var raw []campaignJSON
	params := url.Values{"profileId": {profileID}}
	if err := c.getJSON(ctx, "/v2/campaigns", params, accessToken, profileID, &raw); err != nil {
		return nil, err
	}

	campaigns := make([]Campaign, 0, len(raw))
	for _, rc := range raw {
		campaigns = append(campaigns, rc.toCampaign())
	}
	return campaigns, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, params url.Values, accessToken, scope string, out any) error {
	u := c.apiBaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	return c.retry(ctx, path, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Amazon-Advertising-API-ClientId", c.clientID)
		req.Header.Set("Accept", "application/json")
		if scope != "" {
			req.Header.Set("Amazon-Advertising-API-Scope", scope)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return classifyError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return apiError(resp)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", path, err)
		}
		return nil
	})
}

// retry runs op with exponential backoff and jitter, up to maxRetries extra attempts.
// Non-transient errors stop immediately.
func (c *HTTPClient) retry(ctx context.Context, op string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryWait
	eb.MaxInterval = 10 * c.retryWait

	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(c.maxRetries))
	b = backoff.WithContext(b, ctx)

	attempt := func() error {
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(attempt, b, func(err error, wait time.Duration) {
		c.logger.Warn("retrying amazon call",
			zap.String("op", op),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

func (c *HTTPClient) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.client)
}

// grantError converts an x/oauth2 token retrieval failure into a classified error.
func grantError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		pe := &ProviderError{
			Code:        re.ErrorCode,
			Description: re.ErrorDescription,
			Grant:       true,
		}
		if re.Response != nil {
			pe.StatusCode = re.Response.StatusCode
		}
		if pe.Description == "" && pe.Code == "" && len(re.Body) > 0 {
			pe.Description = string(re.Body)
		}
		return pe
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return classifyError(err)
	}

	return &ProviderError{StatusCode: http.StatusOK, Description: err.Error(), Grant: true}
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	pe := &ProviderError{StatusCode: resp.StatusCode}

	var payload struct {
		Code    string `json:"code"`
		Details string `json:"details"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		pe.Code = payload.Code
		pe.Description = payload.Details
		if pe.Description == "" {
			pe.Description = payload.Message
		}
	}
	return pe
}

func tokenFromOAuth(tok *oauth2.Token) *Token {
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok),
	}
}

// expiresIn reads the raw expires_in so callers can anchor expiry on their own clock.
func expiresIn(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	if !tok.Expiry.IsZero() {
		return time.Until(tok.Expiry).Round(time.Second)
	}
	return defaultTokenLifetime
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
