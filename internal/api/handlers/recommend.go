package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hoanghai1803/lumen/internal/models"
	"github.com/hoanghai1803/lumen/internal/recommend"
)

// Recommender serves ranked article lists. *recommend.Engine implements it.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*models.RecommendationSet, error)
}

type recommendRequest struct {
	UserID      string   `json:"user_id" validate:"required,max=256"`
	MaxResults  int      `json:"max_results" validate:"gte=0,lte=100"`
	Categories  []string `json:"categories" validate:"max=50,dive,required,max=100"`
	ExcludeRead bool     `json:"exclude_read_articles"`
}

// Recommend handles POST /recommend.
func Recommend(rec Recommender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body recommendRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		set, err := rec.Recommend(r.Context(), recommend.Request{
			UserID:      body.UserID,
			MaxResults:  body.MaxResults,
			Categories:  body.Categories,
			ExcludeRead: body.ExcludeRead,
		})
		if errors.Is(err, recommend.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			slog.Error("failed to recommend", "user_id", body.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to compute recommendations")
			return
		}

		writeJSON(w, http.StatusOK, set)
	}
}
