package graphql

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSigningKey = []byte("test-signing-key")

// recordedRequest is a request received by fakeSpacelift.
type recordedRequest struct {
	Auth      string
	Query     string
	Variables map[string]any
}

// fakeSpacelift is an httptest-backed stand-in for the Spacelift GraphQL
// API. Logins mint HS256 JWTs; other requests are answered by onQuery, or by
// default with {"data":{"ok":true}} when the bearer token is one it issued
// and not revoked, and an "unauthorized" error otherwise.
type fakeSpacelift struct {
	t   *testing.T
	srv *httptest.Server

	// onLogin overrides the login response. n counts logins from 1.
	onLogin func(n int, r recordedRequest) (status int, body string)
	// onQuery overrides the response to non-login requests. n counts them
	// from 1.
	onQuery func(n int, r recordedRequest) (status int, body string)
	// validFor is the lifetime reported in validUntil.
	validFor time.Duration

	mu      sync.Mutex
	logins  []recordedRequest
	queries []recordedRequest
	valid   map[string]bool
}

func newFakeSpacelift(t *testing.T) *fakeSpacelift {
	t.Helper()
	f := &fakeSpacelift{
		t:        t,
		validFor: time.Hour,
		valid:    make(map[string]bool),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// creds returns credentials pointing at the fake server.
func (f *fakeSpacelift) creds() Credentials {
	return Credentials{KeyID: "01HKEY", KeySecret: "s3cr3t", EndpointHost: f.srv.URL}
}

func (f *fakeSpacelift) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/graphql" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	raw, _ := io.ReadAll(r.Body)
	var body struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	rec := recordedRequest{Auth: r.Header.Get("Authorization"), Query: body.Query, Variables: body.Variables}

	var status int
	var resp string
	if strings.Contains(body.Query, "apiKeyUser") {
		status, resp = f.login(rec)
	} else {
		status, resp = f.query(rec)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(resp))
}

func (f *fakeSpacelift) login(rec recordedRequest) (int, string) {
	f.mu.Lock()
	f.logins = append(f.logins, rec)
	n := len(f.logins)
	f.mu.Unlock()

	if f.onLogin != nil {
		return f.onLogin(n, rec)
	}

	exp := time.Now().Add(f.validFor)
	token := mintJWT(f.t, fmt.Sprint(rec.Variables["id"]), n, exp)
	f.mu.Lock()
	f.valid[token] = true
	f.mu.Unlock()

	return http.StatusOK, fmt.Sprintf(`{"data":{"apiKeyUser":{"jwt":%q,"validUntil":%d}}}`, token, exp.Unix())
}

func (f *fakeSpacelift) query(rec recordedRequest) (int, string) {
	f.mu.Lock()
	f.queries = append(f.queries, rec)
	n := len(f.queries)
	f.mu.Unlock()

	if f.onQuery != nil {
		return f.onQuery(n, rec)
	}
	if !f.authorized(rec.Auth) {
		return http.StatusOK, `{"data":null,"errors":[{"message":"unauthorized"}]}`
	}
	return http.StatusOK, `{"data":{"ok":true}}`
}

// authorized reports whether header carries a live token issued by f.
func (f *fakeSpacelift) authorized(header string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	f.mu.Lock()
	live := f.valid[token]
	f.mu.Unlock()
	if !live {
		return false
	}
	_, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return testSigningKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil
}

// revokeAll invalidates every token issued so far.
func (f *fakeSpacelift) revokeAll() {
	f.mu.Lock()
	f.valid = make(map[string]bool)
	f.mu.Unlock()
}

func (f *fakeSpacelift) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logins)
}

func (f *fakeSpacelift) queryRequests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.queries...)
}

// mintJWT returns an HS256 token for subject, unique per n.
func mintJWT(t *testing.T, subject string, n int, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"jti": fmt.Sprintf("token-%d", n),
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString(testSigningKey)
	if err != nil {
		t.Errorf("sign test jwt: %v", err)
	}
	return signed
}
