package auth

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const (
	inboundToken  = "fsl_7Qm2xV9kR4"
	initializeRPC = `{"jsonrpc":"2.0","id":1,"method":"initialize"}`
)

// mcpBackend stands in for the streamable MCP handler. It records whether it
// ran and the JSON-RPC body it received.
type mcpBackend struct {
	called bool
	body   string
}

func (b *mcpBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.called = true
	raw, _ := io.ReadAll(r.Body)
	b.body = string(raw)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
}

func Test_NewAuthMiddleware_Cases(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		// header is sent as Authorization when non-nil.
		header     *string
		wantStatus int
	}{
		{name: "matching bearer reaches MCP", configured: inboundToken, header: ptr("Bearer " + inboundToken), wantStatus: http.StatusOK},
		{name: "no Authorization header", configured: inboundToken, wantStatus: http.StatusUnauthorized},
		{name: "blank Authorization header", configured: inboundToken, header: ptr(""), wantStatus: http.StatusUnauthorized},
		{name: "Spacelift API key instead of inbound token", configured: inboundToken, header: ptr("Bearer 01HV8Z5K3M"), wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", configured: inboundToken, header: ptr("Basic " + inboundToken), wantStatus: http.StatusUnauthorized},
		{name: "lowercase scheme", configured: inboundToken, header: ptr("bearer " + inboundToken), wantStatus: http.StatusUnauthorized},
		{name: "scheme without credential", configured: inboundToken, header: ptr("Bearer"), wantStatus: http.StatusUnauthorized},
		{name: "scheme with empty credential", configured: inboundToken, header: ptr("Bearer "), wantStatus: http.StatusUnauthorized},
		{name: "double space before credential", configured: inboundToken, header: ptr("Bearer  " + inboundToken), wantStatus: http.StatusUnauthorized},
		{name: "truncated credential", configured: inboundToken, header: ptr("Bearer fsl_7Qm2"), wantStatus: http.StatusUnauthorized},
		{name: "credential with suffix", configured: inboundToken, header: ptr("Bearer " + inboundToken + "x"), wantStatus: http.StatusUnauthorized},
		{name: "auth disabled without header", wantStatus: http.StatusOK},
		{name: "auth disabled ignores header", header: ptr("Bearer anything"), wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mcpBackend{}
			handler := NewAuthMiddleware(tt.configured, zerolog.Nop())(backend)

			req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(initializeRPC))
			req.Header.Set("Content-Type", "application/json")
			if tt.header != nil {
				req.Header.Set("Authorization", *tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if backend.called {
					t.Error("MCP handler ran for a rejected request")
				}
				if got := rr.Header().Get("WWW-Authenticate"); got != `Bearer realm="flows-spacelift"` {
					t.Errorf("WWW-Authenticate = %q, want the flows-spacelift Bearer challenge", got)
				}
				return
			}
			if !backend.called {
				t.Fatal("MCP handler did not run")
			}
			if backend.body != initializeRPC {
				t.Errorf("MCP handler body = %q, want the initialize request", backend.body)
			}
		})
	}
}

func Test_NewAuthMiddleware_LogsRejectionWithoutToken(t *testing.T) {
	var buf bytes.Buffer
	handler := NewAuthMiddleware(inboundToken, zerolog.New(&buf))(&mcpBackend{})

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(initializeRPC))
	req.Header.Set("Authorization", "Bearer guessed-secret")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "rejected unauthenticated request") {
		t.Errorf("log = %q, want a rejection entry", out)
	}
	if !strings.Contains(out, `"path":"/mcp"`) || !strings.Contains(out, `"header_present":true`) {
		t.Errorf("log = %q, want path and header_present fields", out)
	}
	if strings.Contains(out, "guessed-secret") || strings.Contains(out, inboundToken) {
		t.Error("log contains a bearer token")
	}
}

func ptr(s string) *string { return &s }
