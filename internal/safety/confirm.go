package safety

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const tokenTTL = 5 * time.Minute

// pendingConfirmation holds the metadata for an outstanding confirmation token.
type pendingConfirmation struct {
	tool      string
	resource  string
	createdAt time.Time
}

// ConfirmationTracker manages single-use, time-limited confirmation tokens
// for tools with side effects. A token is only accepted for the tool and
// resource it was issued for.
type ConfirmationTracker struct {
	guarded map[string]struct{}
	now     func() time.Time

	mu     sync.Mutex
	tokens map[string]pendingConfirmation
}

// NewConfirmationTracker returns a ConfirmationTracker requiring confirmation
// for the named tools. A nil or empty slice means no tool requires it.
func NewConfirmationTracker(guardedTools []string) *ConfirmationTracker {
	ct := &ConfirmationTracker{
		guarded: make(map[string]struct{}, len(guardedTools)),
		now:     time.Now,
		tokens:  make(map[string]pendingConfirmation),
	}
	for _, tool := range guardedTools {
		ct.guarded[tool] = struct{}{}
	}
	return ct
}

// NeedsConfirmation reports whether tool requires confirmation. A nil
// tracker requires none.
func (ct *ConfirmationTracker) NeedsConfirmation(tool string) bool {
	if ct == nil {
		return false
	}
	_, ok := ct.guarded[tool]
	return ok
}

// sweepExpired removes all tokens older than tokenTTL. The caller must hold
// ct.mu.
func (ct *ConfirmationTracker) sweepExpired(now time.Time) {
	for token, pending := range ct.tokens {
		if now.Sub(pending.createdAt) > tokenTTL {
			delete(ct.tokens, token)
		}
	}
}

// RequestConfirmation issues a token for running tool against resource.
// Tokens are valid for 5 minutes and are single-use.
func (ct *ConfirmationTracker) RequestConfirmation(tool, resource string) string {
	token := uuid.NewString()
	now := ct.now()

	ct.mu.Lock()
	ct.sweepExpired(now)
	ct.tokens[token] = pendingConfirmation{
		tool:      tool,
		resource:  resource,
		createdAt: now,
	}
	ct.mu.Unlock()

	return token
}

// Confirm consumes token and reports whether it was issued for tool and
// resource and has not expired. A token is consumed even when it does not
// match, so it cannot be retried against another resource.
func (ct *ConfirmationTracker) Confirm(token, tool, resource string) bool {
	if token == "" {
		return false
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	pending, ok := ct.tokens[token]
	if !ok {
		return false
	}
	delete(ct.tokens, token)

	if ct.now().Sub(pending.createdAt) > tokenTTL {
		return false
	}
	return pending.tool == tool && pending.resource == resource
}

// Pending returns the number of outstanding tokens.
func (ct *ConfirmationTracker) Pending() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.tokens)
}
