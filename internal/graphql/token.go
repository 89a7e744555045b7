package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/tokencache"
)

const (
	// tokenSafetyBuffer is subtracted from the expiry the API reports so a
	// cached token is dropped well before the server stops accepting it.
	tokenSafetyBuffer = 300 * time.Second
	// minTokenTTL is the shortest lifetime a cached token is given.
	minTokenTTL = 60 * time.Second
)

// TokenManager obtains Spacelift JWTs for API keys and keeps them in a
// tokencache.Cache. Concurrent refreshes of the same key within a process
// share one login call.
type TokenManager struct {
	cache     tokencache.Cache
	transport *transport
	logger    zerolog.Logger
	now       func() time.Time
	group     singleflight.Group
}

// NewTokenManager returns a TokenManager storing tokens in cache.
func NewTokenManager(cache tokencache.Cache, opts ...Option) (*TokenManager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newTokenManager(cache, &transport{httpClient: o.httpClient}, o)
}

func newTokenManager(cache tokencache.Cache, tr *transport, o options) (*TokenManager, error) {
	if cache == nil {
		return nil, fmt.Errorf("graphql: token cache is required")
	}
	return &TokenManager{
		cache:     cache,
		transport: tr,
		logger:    o.logger,
		now:       o.now,
	}, nil
}

// GetToken returns the cached JWT for creds, logging in when the cache has
// none. Validity of a cached token is left to the cache's TTL.
func (m *TokenManager) GetToken(ctx context.Context, creds Credentials) (string, error) {
	key := creds.CacheKey()
	raw, found, err := m.cache.Get(ctx, key)
	if err != nil {
		m.logger.Warn().Err(err).Str("endpoint", creds.EndpointHost).Msg("token cache read failed, fetching new token")
	} else if found {
		var tok cachedToken
		if err := json.Unmarshal(raw, &tok); err == nil && tok.JWT != "" {
			m.logger.Debug().Str("endpoint", creds.EndpointHost).Str("key_id", creds.KeyID).Msg("token cache hit")
			return tok.JWT, nil
		}
		m.logger.Warn().Str("endpoint", creds.EndpointHost).Msg("ignoring malformed cached token")
	}

	return m.RefreshToken(ctx, creds)
}

// RefreshToken logs in with creds, caches the new JWT and returns it. The
// returned error wraps ErrAuthentication when the API rejects the key and
// ErrProtocol when the login payload is incomplete.
//
// Concurrent callers for the same key share one login. The shared login is
// not cancelled with any single caller's ctx and is bounded by the HTTP
// client timeout; each caller stops waiting when its own ctx is done.
func (m *TokenManager) RefreshToken(ctx context.Context, creds Credentials) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("graphql: token refresh: %w", err)
	}

	shared := context.WithoutCancel(ctx)
	ch := m.group.DoChan(creds.CacheKey(), func() (any, error) {
		return m.refresh(shared, creds)
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("graphql: token refresh: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			m.logger.Debug().Str("endpoint", creds.EndpointHost).Msg("joined in-flight token refresh")
		}
		return res.Val.(string), nil
	}
}

func (m *TokenManager) refresh(ctx context.Context, creds Credentials) (string, error) {
	log := m.logger.With().Str("endpoint", creds.EndpointHost).Str("key_id", creds.KeyID).Logger()

	resp, err := m.transport.post(ctx, creds.URL(), "", loginMutation, map[string]any{
		"id":     creds.KeyID,
		"secret": creds.KeySecret,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Errors) > 0 {
		gqlErr := &GraphQLError{Errors: resp.Errors}
		log.Warn().Strs("errors", gqlErr.Messages()).Msg("login rejected")
		return "", fmt.Errorf("%w: %s: %w", ErrAuthentication, strings.Join(gqlErr.Messages(), "; "), gqlErr)
	}

	var payload struct {
		APIKeyUser *tokenFetchResult `json:"apiKeyUser"`
	}
	if resp.hasData() {
		if err := json.Unmarshal(resp.Data, &payload); err != nil {
			return "", fmt.Errorf("%w: decode login payload: %w", ErrProtocol, err)
		}
	}
	if payload.APIKeyUser == nil || payload.APIKeyUser.JWT == "" {
		return "", fmt.Errorf("%w: login response is missing jwt or validUntil", ErrProtocol)
	}
	validUntil, ok := payload.APIKeyUser.validUntilUnix()
	if !ok {
		return "", fmt.Errorf("%w: login response is missing jwt or validUntil", ErrProtocol)
	}

	jwt := payload.APIKeyUser.JWT
	ttl := tokenTTL(validUntil, m.now())

	value, err := json.Marshal(cachedToken{JWT: jwt})
	if err != nil {
		return "", fmt.Errorf("graphql: marshal cached token: %w", err)
	}
	if err := m.cache.Set(ctx, creds.CacheKey(), value, ttl); err != nil {
		log.Warn().Err(err).Msg("token cache write failed")
	} else {
		log.Debug().Dur("ttl", ttl).Msg("cached new token")
	}
	return jwt, nil
}

// tokenTTL returns how long a token valid until the unix time validUntil may
// be cached: its remaining lifetime minus the safety buffer, but never less
// than minTokenTTL.
func tokenTTL(validUntil int64, now time.Time) time.Duration {
	ttl := time.Duration(validUntil-now.Unix())*time.Second - tokenSafetyBuffer
	if ttl < minTokenTTL {
		return minTokenTTL
	}
	return ttl
}
