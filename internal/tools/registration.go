// Package tools holds the pieces shared by every flows-spacelift MCP tool:
// registration on the server and helpers for building tool results.
package tools

import (
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Registration pairs an MCP tool definition with its handler function.
type Registration struct {
	Tool    mcp.Tool
	Handler server.ToolHandlerFunc
}

// Validate reports the first registration without a name or handler, or
// whose name is already taken by an earlier one.
func Validate(registrations []Registration) error {
	seen := make(map[string]struct{}, len(registrations))
	for i, r := range registrations {
		if r.Tool.Name == "" {
			return fmt.Errorf("tools: registration %d has no tool name", i)
		}
		if r.Handler == nil {
			return fmt.Errorf("tools: tool %q has no handler", r.Tool.Name)
		}
		if _, dup := seen[r.Tool.Name]; dup {
			return fmt.Errorf("tools: tool %q is registered twice", r.Tool.Name)
		}
		seen[r.Tool.Name] = struct{}{}
	}
	return nil
}

// RegisterAll validates registrations and adds them to s. Nothing is added
// when validation fails, so a bad block catalogue never serves a partial
// tool list.
func RegisterAll(s *server.MCPServer, registrations []Registration) error {
	if err := Validate(registrations); err != nil {
		return err
	}
	for _, r := range registrations {
		s.AddTool(r.Tool, r.Handler)
	}
	return nil
}

// Names returns the sorted tool names of registrations.
func Names(registrations []Registration) []string {
	names := make([]string, 0, len(registrations))
	for _, r := range registrations {
		names = append(names, r.Tool.Name)
	}
	sort.Strings(names)
	return names
}
