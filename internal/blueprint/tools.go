package blueprint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/graphql"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/safety"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/tools"
)

// ToolCreateStack is the name of the MCP tool wrapping Block.Run.
const ToolCreateStack = "create_stack_from_blueprint"

// GuardedTools lists the tools of this package that can require a
// confirmation token.
var GuardedTools = []string{ToolCreateStack}

// BlueprintTools returns the tool registrations of the blueprint block. When
// confirm guards ToolCreateStack, a stack is only created on the second call
// carrying the token returned by the first.
func BlueprintTools(block *Block, appConfig graphql.ConfigSource, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		toolCreateStack(block, appConfig, confirm, audit),
	}
}

func toolCreateStack(block *Block, appConfig graphql.ConfigSource, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(ToolCreateStack,
		mcp.WithDescription("Create a Spacelift stack from a blueprint. Returns the ids of the created stacks and the runs they triggered."),
		mcp.WithString("blueprintId",
			mcp.Required(),
			mcp.Description("ID of the blueprint to instantiate."),
		),
		mcp.WithObject("inputs",
			mcp.Description("Template input values keyed by input id."),
		),
		mcp.WithString(tools.ConfirmationTokenParam,
			mcp.Description("Confirmation token returned by a prior call to this tool."),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		in := Input{BlueprintID: req.GetString("blueprintId", "")}
		params := map[string]any{"blueprintId": in.BlueprintID}
		fail := func(msg string) (*mcp.CallToolResult, error) {
			tools.LogAudit(audit, ToolCreateStack, params, "error: "+msg, start)
			return tools.ErrorResult(msg), nil
		}

		inputs, err := inputsArgument(req.GetArguments()["inputs"])
		if err != nil {
			return fail(err.Error())
		}
		in.Inputs = inputs
		params["inputs"] = inputs

		// Reject bad input before a confirmation token is spent on it.
		if err := in.Validate(); err != nil {
			return fail(err.Error())
		}
		if err := block.filter.Check(in.BlueprintID); err != nil {
			return fail(err.Error())
		}

		if confirm.NeedsConfirmation(ToolCreateStack) {
			token := req.GetString(tools.ConfirmationTokenParam, "")
			if token == "" {
				return tools.ConfirmPrompt(confirm, ToolCreateStack, in.BlueprintID,
					fmt.Sprintf("Create a stack from blueprint %q with %d template input(s).", in.BlueprintID, len(inputs))), nil
			}
			if !confirm.Confirm(token, ToolCreateStack, in.BlueprintID) {
				return fail("invalid or expired confirmation token")
			}
		}

		out, err := block.Run(ctx, appConfig(), in)
		if err != nil {
			return fail(err.Error())
		}

		tools.LogAudit(audit, ToolCreateStack, params, "ok", start)
		return tools.JSONResult(out), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// inputsArgument accepts the inputs argument either as an object or as a JSON
// object string.
func inputsArgument(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(t), &m); err != nil {
			return nil, fmt.Errorf("%w: parse inputs JSON: %v", ErrInvalidInput, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: inputs must be an object, got %T", ErrInvalidInput, v)
	}
}
