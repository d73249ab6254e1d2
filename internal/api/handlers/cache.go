package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hoanghai1803/lumen/internal/cache"
	"github.com/hoanghai1803/lumen/internal/models"
)

// Invalidator drops cached results. *cache.Cache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, scope models.InvalidationScope) (int, error)
}

type invalidateRequest struct {
	ArticleID string `json:"article_id" validate:"required_without_all=UserID Type,max=256"`
	UserID    string `json:"user_id" validate:"max=256"`
	Type      string `json:"type" validate:"omitempty,oneof=generation recommendation priors"`
}

// InvalidateCache handles POST /cache/invalidate. Set fields combine with
// AND; at least one is required. Authentication is the router's concern.
func InvalidateCache(inv Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body invalidateRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		scope := models.InvalidationScope{
			ArticleID: body.ArticleID,
			UserID:    body.UserID,
			Kind:      body.Type,
		}
		n, err := inv.Invalidate(r.Context(), scope)
		if errors.Is(err, cache.ErrEmptyScope) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			slog.Error("failed to invalidate cache", "scope", scope, "error", err)
			writeError(w, http.StatusServiceUnavailable, "Cache is unavailable")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "removed": n})
	}
}
