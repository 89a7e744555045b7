package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/safety"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/tools"
)

const toolNameGraphQLQuery = "graphql_query"

// GraphQLTools returns the tool registrations of the shared client. It
// exposes a single "graphql_query" tool running arbitrary authenticated
// queries against the Spacelift API.
func GraphQLTools(exec Executor, appConfig ConfigSource, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		toolGraphQLQuery(exec, appConfig, audit),
	}
}

// toolGraphQLQuery constructs the graphql_query Registration.
func toolGraphQLQuery(exec Executor, appConfig ConfigSource, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameGraphQLQuery,
		mcp.WithDescription("Execute an authenticated GraphQL query or mutation against the Spacelift API."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The GraphQL query or mutation string to execute."),
		),
		mcp.WithString("variables",
			mcp.Description("Optional JSON object string of variables to pass with the query."),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		query := req.GetString("query", "")
		variablesStr := req.GetString("variables", "")

		params := map[string]any{
			"query":     query,
			"variables": variablesStr,
		}
		fail := func(msg string) (*mcp.CallToolResult, error) {
			tools.LogAudit(audit, toolNameGraphQLQuery, params, "error: "+msg, start)
			return tools.ErrorResult(msg), nil
		}

		if query == "" {
			return fail("query is required")
		}

		var parsedVars map[string]any
		if variablesStr != "" {
			if err := json.Unmarshal([]byte(variablesStr), &parsedVars); err != nil {
				return fail(fmt.Sprintf("parse variables JSON: %v", err))
			}
		}

		creds, err := ExtractCredentials(appConfig())
		if err != nil {
			return fail(err.Error())
		}

		data, err := exec.Execute(ctx, creds, query, parsedVars)
		if err != nil {
			return fail(err.Error())
		}

		// Unmarshal the raw JSON bytes into any so tools.JSONResult can
		// pretty-print it with consistent indentation.
		var parsed any
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fail(err.Error())
		}

		tools.LogAudit(audit, toolNameGraphQLQuery, params, "ok", start)
		return tools.JSONResult(parsed), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
