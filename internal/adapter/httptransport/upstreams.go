package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/mcpcore/mcpcore/internal/adapter/outbound/memory"
	"github.com/mcpcore/mcpcore/internal/domain/upstream"
)

// UpstreamsHandler serves read-only introspection of the upstreams
// buildProviders wired at boot: their configuration, transport type, and
// live connection status. Grounded on the reference's admin upstream
// listing (internal/adapter/inbound/admin/upstream_handlers.go), trimmed to
// the read side since this module configures upstreams from cfg at startup
// rather than through a dynamic admin CRUD API.
type UpstreamsHandler struct {
	store *memory.MemoryUpstreamStore
}

// NewUpstreamsHandler wraps store. A nil store is valid; Handler then always
// reports an empty list instead of panicking.
func NewUpstreamsHandler(store *memory.MemoryUpstreamStore) *UpstreamsHandler {
	return &UpstreamsHandler{store: store}
}

// Handler serves GET /upstreams (list) and GET /upstreams/{name} (single).
func (h *UpstreamsHandler) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		if h.store == nil {
			_ = json.NewEncoder(w).Encode([]upstream.Upstream{})
			return
		}

		name := stripUpstreamsPrefix(r.URL.Path)
		if name == "" {
			all, err := h.store.List(r.Context())
			if err != nil {
				http.Error(w, "failed to list upstreams", http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(all)
			return
		}

		u, err := h.store.Get(r.Context(), name)
		if err != nil {
			http.Error(w, "upstream not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(u)
	})
}

func stripUpstreamsPrefix(path string) string {
	const prefix = "/upstreams/"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return ""
}
