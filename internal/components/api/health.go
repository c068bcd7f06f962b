package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

// probeTimeout bounds a single health probe.
const probeTimeout = 2 * time.Second

// HealthResponse is the body of the health check endpoint.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthProbe reports whether a backing dependency is reachable.
type HealthProbe func(ctx context.Context) error

// StoreProbe reads a reserved key from the document store. ErrNotFound means the store answered.
func StoreProbe(st store.DocumentStore) HealthProbe {
	return func(ctx context.Context) error {
		_, err := st.Get(ctx, identity.SystemOwner, store.CollectionUsers, "healthz")
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
}

// NewHealthHandler handles GET /api/healthz. It answers 503 if any probe fails.
func NewHealthHandler(probes map[string]HealthProbe, log *slog.Logger) http.HandlerFunc {
	log = logutil.NoopIfNil(log)

	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		code := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			err := probes[name](ctx)
			cancel()
			if err != nil {
				log.Warn("health probe failed", "probe", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		WriteJSON(w, code, resp)
	}
}
