package graphql

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrConfiguration is wrapped by errors about missing or invalid
	// credentials. It is returned before any network access.
	ErrConfiguration = errors.New("graphql: configuration error")

	// ErrAuthentication is wrapped by errors from the login mutation.
	ErrAuthentication = errors.New("graphql: authentication failed")

	// ErrProtocol is wrapped when a well-formed response lacks a field the
	// caller depends on.
	ErrProtocol = errors.New("graphql: protocol error")
)

// ResponseError is a single entry of a GraphQL response's "errors" list.
type ResponseError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// format renders the error as one bullet, followed by its numbered
// extensions when it has any. Extension keys are listed in sorted order.
func (r ResponseError) format() string {
	line := " - " + r.Message
	if len(r.Extensions) == 0 {
		return line
	}

	keys := make([]string, 0, len(r.Extensions))
	for k := range r.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ext := make([]string, len(keys))
	for i, k := range keys {
		ext[i] = fmt.Sprintf("%d. %s: %v", i+1, k, r.Extensions[k])
	}
	return line + ":\n" + strings.Join(ext, "\n")
}

// GraphQLError is returned when a response carries a non-empty errors list.
type GraphQLError struct {
	Errors []ResponseError
}

func (e *GraphQLError) Error() string {
	lines := make([]string, len(e.Errors))
	for i, re := range e.Errors {
		lines[i] = re.format()
	}
	return "GraphQL error:\n" + strings.Join(lines, "\n") + "\n"
}

// Messages returns the message of every error in order.
func (e *GraphQLError) Messages() []string {
	msgs := make([]string, len(e.Errors))
	for i, re := range e.Errors {
		msgs[i] = re.Message
	}
	return msgs
}

// Unauthorized reports whether any message mentions "unauthorized",
// ignoring case. The API gives no structured code for this condition.
func (e *GraphQLError) Unauthorized() bool {
	joined := strings.ToLower(strings.Join(e.Messages(), "\n"))
	return strings.Contains(joined, "unauthorized")
}

// IsUnauthorized reports whether err is a GraphQLError that would trigger a
// token refresh.
func IsUnauthorized(err error) bool {
	var gqlErr *GraphQLError
	return errors.As(err, &gqlErr) && gqlErr.Unauthorized()
}
