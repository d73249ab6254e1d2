package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hoanghai1803/lumen/internal/models"
	"github.com/hoanghai1803/lumen/internal/recommend"
	"github.com/hoanghai1803/lumen/internal/storage"
)

// Tracker records user interactions. *recommend.Engine implements it.
type Tracker interface {
	Track(ctx context.Context, req recommend.TrackRequest) error
}

type trackRequest struct {
	UserID          string  `json:"user_id" validate:"required,max=256"`
	ArticleID       string  `json:"article_id" validate:"required,max=256"`
	Action          string  `json:"action" validate:"required,oneof=view read like save share skip"`
	DurationSeconds float64 `json:"duration_seconds" validate:"gte=0"`
	ScrollDepth     float64 `json:"scroll_depth" validate:"gte=0,lte=1"`
}

// TrackInteraction handles POST /interactions/track. An unknown article is
// a neutral {"success": false} rather than an error status.
func TrackInteraction(tr Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body trackRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		err := tr.Track(r.Context(), recommend.TrackRequest{
			UserID:          body.UserID,
			ArticleID:       body.ArticleID,
			Action:          models.ActionKind(body.Action),
			DurationSeconds: body.DurationSeconds,
			ScrollDepth:     body.ScrollDepth,
		})
		switch {
		case errors.Is(err, recommend.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, storage.ErrNotFound):
			writeJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"reason":  "article not found",
			})
			return
		case err != nil:
			slog.Error("failed to track interaction", "user_id", body.UserID, "article_id", body.ArticleID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to track interaction")
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
