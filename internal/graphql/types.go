// Package graphql provides an authenticated GraphQL client for the Spacelift
// API: credential extraction, JWT caching and a single retry when the API
// reports the request as unauthorized.
package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// Executor runs a GraphQL query or mutation on behalf of a Spacelift API key
// and returns the raw JSON of the response's "data" field.
type Executor interface {
	Execute(ctx context.Context, creds Credentials, query string, variables map[string]any) (json.RawMessage, error)
}

// graphqlRequest is the JSON body shape for a GraphQL HTTP request.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the JSON body shape for a GraphQL HTTP response.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []ResponseError `json:"errors"`
}

// hasData reports whether the response carries a non-null data payload.
func (r *graphqlResponse) hasData() bool {
	return len(r.Data) > 0 && string(r.Data) != "null"
}

// cachedToken is the value stored in the token cache.
type cachedToken struct {
	JWT string `json:"jwt"`
}

// tokenFetchResult is the payload of the apiKeyUser login mutation.
type tokenFetchResult struct {
	JWT        string      `json:"jwt"`
	ValidUntil json.Number `json:"validUntil"`
}

// validUntilUnix returns validUntil as whole unix seconds. Fractional and
// exponent forms are truncated; false means the field is absent or not finite.
func (r *tokenFetchResult) validUntilUnix() (int64, bool) {
	if r.ValidUntil == "" {
		return 0, false
	}
	if n, err := r.ValidUntil.Int64(); err == nil {
		return n, true
	}
	f, err := r.ValidUntil.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/2 {
		return 0, false
	}
	return int64(math.Trunc(f)), true
}

const loginMutation = `mutation GetSpaceliftToken($id: ID!, $secret: String!) {
  apiKeyUser(id: $id, secret: $secret) {
    jwt
    validUntil
  }
}`

// Query runs query through e and decodes the returned data into T.
func Query[T any](ctx context.Context, e Executor, creds Credentials, query string, variables map[string]any) (T, error) {
	var out T
	data, err := e.Execute(ctx, creds, query, variables)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("graphql: decode data: %w", err)
	}
	return out, nil
}
