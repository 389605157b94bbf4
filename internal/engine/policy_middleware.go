package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mcpcore/mcpcore/internal/domain/policy"
	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolPolicyMiddleware gates tools/call against a CEL-backed PolicyEngine.
// A request whose params don't even parse as a tool call is left for the
// provider-level validation in mcpproto to reject with InvalidParams;
// this stage only ever narrows, never malforms, a method it doesn't
// recognize. The decision is stashed on the context via
// policy.WithDecision so an AuditMiddleware inside it in the chain can
// record it without re-evaluating; a denial's error response also
// carries the rule id in its data for an AuditMiddleware outside it.
func ToolPolicyMiddleware(eng policy.PolicyEngine, logger *slog.Logger) Middleware {
	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, msg jsonrpc.Message) (jsonrpc.Message, error) {
			req, ok := msg.(*jsonrpc.Request)
			if !ok || req.Method != "tools/call" {
				return next(ctx, msg)
			}

			var params toolCallParams
			if len(req.Params) == 0 || json.Unmarshal(req.Params, &params) != nil {
				return next(ctx, msg)
			}

			meta := RequestMetaFromContext(ctx)
			decision, err := eng.Evaluate(ctx, policy.EvaluationContext{
				ToolName:      params.Name,
				ToolArguments: params.Arguments,
				UserRoles:     meta.Roles,
				SessionID:     meta.SessionID,
				IdentityID:    meta.IdentityID,
				IdentityName:  meta.IdentityName,
				RequestTime:   time.Now(),
				ActionType:    "tool_call",
				ActionName:    params.Name,
				Protocol:      "mcp",
			})
			if err != nil {
				logger.Error("tool policy evaluation failed", "error", err, "tool", params.Name)
				return next(ctx, msg)
			}
			ctx = policy.WithDecision(ctx, &decision)

			if !decision.Allowed {
				return errorResponse(req.ID, jsonrpc.CodeUnauthorized, decision.Reason, map[string]any{
					"rule_id": decision.RuleID,
				})
			}
			return next(ctx, msg)
		}
	}
}
