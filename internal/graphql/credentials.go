package graphql

import (
	"fmt"
	"strings"
)

// Keys of the app-level configuration mapping holding the API key.
const (
	ConfigKeyID       = "apiKeyId"
	ConfigKeySecret   = "apiKeySecret"
	ConfigKeyEndpoint = "endpoint"
)

// Credentials identify a Spacelift API key and the account it belongs to.
type Credentials struct {
	KeyID     string
	KeySecret string
	// EndpointHost is the account hostname without scheme, for example
	// acme.app.spacelift.io.
	EndpointHost string
}

// CacheKey returns the token cache key for c. Two credentials share a key
// exactly when they share endpoint host and key id.
func (c Credentials) CacheKey() string {
	return "jwt:" + c.EndpointHost + ":" + c.KeyID
}

// URL returns the GraphQL endpoint of the account. A host without a scheme is
// reached over https.
func (c Credentials) URL() string {
	return normalizeURL(c.EndpointHost)
}

// normalizeURL prefixes rawURL with https:// when it carries no scheme, trims
// trailing slashes and appends /graphql unless already present.
func normalizeURL(rawURL string) string {
	u := strings.TrimRight(rawURL, "/")
	if !strings.Contains(u, "://") {
		u = "https://" + u
	}
	if !strings.HasSuffix(u, "/graphql") {
		u += "/graphql"
	}
	return u
}

// ExtractCredentials reads the API key id, secret and endpoint host from an
// untyped app configuration. All three keys must be present and truthy;
// otherwise the returned error wraps ErrConfiguration and names the missing
// keys. Non-string truthy values are converted with fmt.Sprint.
func ExtractCredentials(cfg map[string]any) (Credentials, error) {
	var missing []string
	get := func(key string) string {
		v, ok := cfg[key]
		if !ok || !truthy(v) {
			missing = append(missing, key)
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}

	creds := Credentials{
		KeyID:        get(ConfigKeyID),
		KeySecret:    get(ConfigKeySecret),
		EndpointHost: get(ConfigKeyEndpoint),
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("%w: Spacelift credentials are missing: %s",
			ErrConfiguration, strings.Join(missing, ", "))
	}
	return creds, nil
}

// truthy mirrors the loose truthiness the host applies to configuration
// values: nil, empty strings, false and numeric zero are all absent.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

// ConfigSource returns the app configuration credentials are extracted from.
// It is consulted on every invocation so credential changes apply without a
// restart.
type ConfigSource func() map[string]any
