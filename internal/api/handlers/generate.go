package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hoanghai1803/lumen/internal/generation"
	"github.com/hoanghai1803/lumen/internal/models"
	"github.com/hoanghai1803/lumen/internal/storage"
)

// Generator serves article-level generation. *generation.Service
// implements it.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error)
	Lookup(ctx context.Context, requestID string) (*models.GenerationRecord, error)
}

type generateRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=summarize qa reason"`
	ArticleID string `json:"article_id" validate:"required,max=256"`
	UserID    string `json:"user_id" validate:"max=256"`
	Question  string `json:"question" validate:"required_if=Kind qa,max=2000"`
	Length    string `json:"length" validate:"omitempty,oneof=short medium long"`
}

// Generate handles POST /generate. Upstream provider failures never reach
// the client; they surface as a Low-confidence extractive answer. A prompt
// the provider refuses is a 422.
func Generate(gen Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body generateRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		resp, err := gen.Generate(r.Context(), models.GenerationRequest{
			Kind:      models.GenerationKind(body.Kind),
			ArticleID: body.ArticleID,
			UserID:    body.UserID,
			Question:  body.Question,
			Length:    body.Length,
		})
		switch {
		case errors.Is(err, generation.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, generation.ErrRejected):
			writeError(w, http.StatusUnprocessableEntity, "The request was rejected by the provider")
			return
		case err != nil:
			slog.Error("failed to generate", "kind", body.Kind, "article_id", body.ArticleID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to generate")
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// GetGeneration handles GET /generate/{requestId}. Repeated polls return the
// same stored record.
func GetGeneration(gen Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := pathParam(r, "requestId")
		if id == "" {
			writeError(w, http.StatusBadRequest, "request id is required")
			return
		}

		rec, err := gen.Lookup(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Generation not found")
			return
		}
		if err != nil {
			slog.Error("failed to look up generation", "request_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to look up generation")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "completed",
			"request_id": rec.RequestID,
			"request":    rec.Request,
			"response":   rec.Response,
			"created_at": rec.CreatedAt,
		})
	}
}
