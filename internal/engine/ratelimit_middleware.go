package engine

import (
	"context"
	"log/slog"

	"github.com/mcpcore/mcpcore/internal/domain/ratelimit"
	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

// RateLimitMiddleware throttles calls (requests expecting a response;
// notifications pass through unthrottled) keyed by identity when
// authenticated, falling back to remote address otherwise. A limiter
// error fails open — logged and passed through — since a broken limiter
// backend must never be allowed to take the whole server down.
func RateLimitMiddleware(limiter ratelimit.RateLimiter, cfg ratelimit.RateLimitConfig, logger *slog.Logger) Middleware {
	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, msg jsonrpc.Message) (jsonrpc.Message, error) {
			req, ok := msg.(*jsonrpc.Request)
			if !ok || !req.IsCall() {
				return next(ctx, msg)
			}

			meta := RequestMetaFromContext(ctx)
			key := ratelimit.FormatKey(ratelimit.KeyTypeIP, meta.RemoteAddr)
			if meta.IdentityID != "" {
				key = ratelimit.FormatKey(ratelimit.KeyTypeUser, meta.IdentityID)
			}

			result, err := limiter.Allow(ctx, key, cfg)
			if err != nil {
				logger.Warn("rate limiter error, failing open", "error", err, "method", req.Method)
				return next(ctx, msg)
			}
			if !result.Allowed {
				return errorResponse(req.ID, jsonrpc.CodeRateLimited, "rate limit exceeded", map[string]any{
					"retry_after_ms": result.RetryAfter.Milliseconds(),
				})
			}
			return next(ctx, msg)
		}
	}
}

func errorResponse(id jsonrpc.ID, code int64, message string, data any) (jsonrpc.Message, error) {
	resp, err := jsonrpc.NewResponse(id, nil, jsonrpc.NewError(code, message, data))
	if err != nil {
		return nil, err
	}
	return resp, nil
}
