package unity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/ports"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSafetyMargin is how long before expiry a cached token stops being handed out
	DefaultSafetyMargin = 60 * time.Second

	// DefaultFallbackTTL is assumed when the token carries no exp claim
	DefaultFallbackTTL = 10 * time.Minute

	flightKey = "service-token"
)

// CredentialConfig describes how to exchange the static service account for a token
type CredentialConfig struct {
	AuthURL       string
	ProjectID     string
	EnvironmentID string
	KeyID         string
	SecretKey     string
	AuthHeader    string // used verbatim when set
	Timeout       time.Duration
	SafetyMargin  time.Duration
	FallbackTTL   time.Duration
}

// CredentialCache hands out the provider bearer token and refreshes it
// with at most one exchange in flight. Build one per process and share it.
type CredentialCache struct {
	client  *resty.Client
	cfg     CredentialConfig
	log     logrus.FieldLogger
	metrics ports.Metrics
	now     func() time.Time

	mu     sync.Mutex
	cred   core.ServiceCredential
	flight singleflight.Group
}

type tokenExchangeResponse struct {
	AccessToken string `json:"accessToken"`
}

// NewCredentialCache creates an empty cache
func NewCredentialCache(cfg CredentialConfig, log logrus.FieldLogger, metrics ports.Metrics) *CredentialCache {
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	if cfg.FallbackTTL <= 0 {
		cfg.FallbackTTL = DefaultFallbackTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	return &CredentialCache{
		client:  resty.New().SetBaseURL(cfg.AuthURL).SetTimeout(cfg.Timeout),
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Token returns a bearer token with more than the safety margin left,
// exchanging a new one when needed. Concurrent callers share one exchange
// and all receive its token or its error.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	ch := c.flight.DoChan(flightKey, func() (interface{}, error) {
		// A flight that finished just before this one started may have refreshed it
		if token, ok := c.cached(); ok {
			return token, nil
		}

		// The exchange must not die with whichever caller happened to start it
		cred, err := c.exchange(context.WithoutCancel(ctx))
		if err != nil {
			c.metrics.CredentialRefresh("error")
			c.log.WithError(err).Warn("service token exchange failed")
			return "", err
		}

		c.mu.Lock()
		c.cred = cred
		c.mu.Unlock()

		c.metrics.CredentialRefresh("ok")
		c.log.WithField("expires_at", cred.ExpiresAt).Info("service token refreshed")

		return cred.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next caller exchanges a new one
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cred = core.ServiceCredential{}
}

func (c *CredentialCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cred.Valid(c.now(), c.cfg.SafetyMargin) {
		return c.cred.AccessToken, true
	}

	return "", false
}

func (c *CredentialCache) exchange(ctx context.Context) (core.ServiceCredential, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", c.authorization()).
		SetHeader("Content-Type", "application/json").
		SetQueryParams(map[string]string{
			"projectId":     c.cfg.ProjectID,
			"environmentId": c.cfg.EnvironmentID,
		}).
		Post("/v1/token-exchange")
	if err != nil {
		return core.ServiceCredential{}, fmt.Errorf("token exchange: %v: %w", err, core.ErrUpstream)
	}

	if !resp.IsSuccess() {
		return core.ServiceCredential{}, fmt.Errorf("token exchange returned %d: %w", resp.StatusCode(), core.ErrUpstreamAuth)
	}

	var out tokenExchangeResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil || out.AccessToken == "" {
		return core.ServiceCredential{}, fmt.Errorf("token exchange returned no access token: %w", core.ErrUpstreamAuth)
	}

	return core.ServiceCredential{
		AccessToken: out.AccessToken,
		ExpiresAt:   c.expiry(out.AccessToken),
	}, nil
}

// expiry reads the exp claim of the token without verifying it,
// the provider is the only party that can.
func (c *CredentialCache) expiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	return c.now().Add(c.cfg.FallbackTTL)
}

func (c *CredentialCache) authorization() string {
	if c.cfg.AuthHeader != "" {
		return c.cfg.AuthHeader
	}

	raw := c.cfg.KeyID + ":" + c.cfg.SecretKey
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}
