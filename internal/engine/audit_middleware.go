package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mcpcore/mcpcore/internal/domain/audit"
	"github.com/mcpcore/mcpcore/internal/domain/policy"
	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

// AuditMiddleware records one AuditRecord per tools/call after the inner
// chain completes, without re-evaluating policy. Placed inside
// ToolPolicyMiddleware, it reuses the policy.Decision left on the context;
// placed outside, it reads a denial back from the error response (its
// message as the reason, the data's rule_id as the rule). A store append
// failure is logged, never surfaced to the caller — an audit outage must
// not block the tool call it would have recorded.
func AuditMiddleware(store audit.AuditStore, logger *slog.Logger) Middleware {
	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, msg jsonrpc.Message) (jsonrpc.Message, error) {
			req, ok := msg.(*jsonrpc.Request)
			if !ok || req.Method != "tools/call" {
				return next(ctx, msg)
			}

			start := time.Now()
			resp, err := next(ctx, msg)

			var params toolCallParams
			_ = json.Unmarshal(req.Params, &params)

			meta := RequestMetaFromContext(ctx)
			record := audit.AuditRecord{
				Timestamp:     start,
				SessionID:     meta.SessionID,
				IdentityID:    meta.IdentityID,
				IdentityName:  meta.IdentityName,
				ToolName:      params.Name,
				ToolArguments: params.Arguments,
				Decision:      "allow",
				RequestID:     meta.SessionID,
				LatencyMicros: time.Since(start).Microseconds(),
				Protocol:      "mcp",
			}
			if d := policy.DecisionFromContext(ctx); d != nil {
				record.RuleID = d.RuleID
				record.Reason = d.Reason
				if !d.Allowed {
					record.Decision = "deny"
				}
			} else if r, ok := resp.(*jsonrpc.Response); ok && r.Error != nil {
				record.Decision = "deny"
				record.Reason = r.Error.Message
				var data struct {
					RuleID string `json:"rule_id"`
				}
				if json.Unmarshal(r.Error.Data, &data) == nil {
					record.RuleID = data.RuleID
				}
			}

			if appendErr := store.Append(ctx, record); appendErr != nil {
				logger.Warn("audit append failed", "error", appendErr, "tool", params.Name)
			}

			return resp, err
		}
	}
}
