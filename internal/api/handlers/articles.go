package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hoanghai1803/lumen/internal/models"
	"github.com/hoanghai1803/lumen/internal/recommend"
)

// ArticleSink stores articles from the article source.
// *recommend.Engine implements it.
type ArticleSink interface {
	RefreshArticle(ctx context.Context, a *models.Article) (changed bool, err error)
}

type articleRequest struct {
	ID          string    `json:"id" validate:"required,max=256"`
	Title       string    `json:"title" validate:"required,max=1000"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Category    string    `json:"category" validate:"max=100"`
	URL         string    `json:"url" validate:"omitempty,url"`
	Source      string    `json:"source" validate:"max=200"`
	PublishedAt time.Time `json:"published_at"`
	Popularity  float64   `json:"popularity" validate:"gte=0"`
}

// UpsertArticle handles POST /articles. When the article's content changed
// its embedding is refreshed and cached results that include it are
// dropped.
func UpsertArticle(sink ArticleSink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body articleRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		a := &models.Article{
			ID:          body.ID,
			Title:       body.Title,
			Description: body.Description,
			Content:     body.Content,
			Category:    body.Category,
			URL:         body.URL,
			Source:      body.Source,
			PublishedAt: body.PublishedAt,
			Popularity:  body.Popularity,
		}
		changed, err := sink.RefreshArticle(r.Context(), a)
		if errors.Is(err, recommend.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			slog.Error("failed to store article", "article_id", body.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to store article")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "changed": changed})
	}
}
