package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/tokencache"
)

const (
	defaultTimeout = 30 * time.Second

	// maxAuthRetries bounds how many times Execute refreshes the token and
	// resends a request the API rejected as unauthorized.
	maxAuthRetries = 1
)

// Option configures a Client or TokenManager.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

func defaultOptions() options {
	return options{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
}

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout sets the request timeout of the default HTTP client. Zero or
// negative values keep the 30 second default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the time source used for token TTLs.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// transport sends GraphQL documents over HTTP.
type transport struct {
	httpClient *http.Client
}

// post sends query to url, authenticating with jwt when it is non-empty, and
// decodes the GraphQL response. A non-2xx status is only an error when the
// body is not a GraphQL document.
func (t *transport) post(ctx context.Context, url, jwt, query string, variables map[string]any) (*graphqlResponse, error) {
	bodyBytes, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("graphql: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("graphql: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if jwt != "" {
		req.Header.Set("Authorization", "Bearer "+jwt)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphql: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("graphql: read response: %w", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	var gqlResp graphqlResponse
	if err := json.Unmarshal(raw, &gqlResp); err != nil {
		if !ok {
			return nil, fmt.Errorf("graphql: unexpected HTTP status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("graphql: decode response: %w", err)
	}
	if !ok && len(gqlResp.Errors) == 0 && !gqlResp.hasData() {
		return nil, fmt.Errorf("graphql: unexpected HTTP status %d", resp.StatusCode)
	}
	return &gqlResp, nil
}

// Client executes authenticated GraphQL requests against a Spacelift
// account. It is safe for concurrent use.
type Client struct {
	transport *transport
	tokens    *TokenManager
	logger    zerolog.Logger
}

// NewClient returns a Client that keeps tokens in cache. It returns an error
// if cache is nil.
func NewClient(cache tokencache.Cache, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	tr := &transport{httpClient: o.httpClient}
	tokens, err := newTokenManager(cache, tr, o)
	if err != nil {
		return nil, err
	}
	return &Client{
		transport: tr,
		tokens:    tokens,
		logger:    o.logger,
	}, nil
}

// Tokens returns the TokenManager backing c.
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// Execute sends query with variables to the account of creds and returns the
// raw JSON of the "data" field. Variables may be nil.
//
// When the response reports the request as unauthorized, the token is
// refreshed and the request is sent once more. Execute returns:
//   - a *GraphQLError if the response (or the retried response) has errors
//   - an error wrapping ErrAuthentication if the token cannot be obtained
//   - an error wrapping ErrProtocol if the response has neither errors nor data
//   - a transport error if the request cannot be sent or decoded
func (c *Client) Execute(ctx context.Context, creds Credentials, query string, variables map[string]any) (json.RawMessage, error) {
	jwt, err := c.tokens.GetToken(ctx, creds)
	if err != nil {
		return nil, err
	}

	log := c.logger.With().Str("endpoint", creds.EndpointHost).Str("key_id", creds.KeyID).Logger()

	for attempt := 0; ; attempt++ {
		resp, err := c.transport.post(ctx, creds.URL(), jwt, query, variables)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("graphql request failed")
			return nil, err
		}

		if len(resp.Errors) == 0 {
			if !resp.hasData() {
				return nil, fmt.Errorf("%w: no data returned", ErrProtocol)
			}
			return resp.Data, nil
		}

		gqlErr := &GraphQLError{Errors: resp.Errors}
		if attempt >= maxAuthRetries || !gqlErr.Unauthorized() {
			log.Warn().Strs("errors", gqlErr.Messages()).Int("attempt", attempt).Msg("graphql query returned errors")
			return nil, gqlErr
		}

		log.Info().Msg("request unauthorized, refreshing token and retrying")
		jwt, err = c.tokens.RefreshToken(ctx, creds)
		if err != nil {
			return nil, err
		}
	}
}
