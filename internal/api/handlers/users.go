package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hoanghai1803/lumen/internal/coldstart"
	"github.com/hoanghai1803/lumen/internal/models"
	"github.com/hoanghai1803/lumen/internal/recommend"
)

// Users exposes onboarding and cold-start state. *recommend.Engine
// implements it.
type Users interface {
	Onboard(ctx context.Context, userID string, d models.Demographics) (*models.UserProfile, error)
	Priors(ctx context.Context, userID string) (*coldstart.Priors, error)
	LearningPlan(ctx context.Context, userID string) (*coldstart.LearningPlan, error)
}

type onboardingRequest struct {
	AgeBracket string   `json:"age_bracket" validate:"max=32"`
	Profession string   `json:"profession" validate:"max=100"`
	Locale     string   `json:"locale" validate:"max=35"`
	Location   string   `json:"location" validate:"max=100"`
	Interests  []string `json:"interests" validate:"max=50,dive,required,max=100"`
}

// Onboard handles PUT /users/{id}/onboarding.
func Onboard(u Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := pathParam(r, "id")
		var body onboardingRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		profile, err := u.Onboard(r.Context(), userID, models.Demographics{
			AgeBracket: body.AgeBracket,
			Profession: body.Profession,
			Locale:     body.Locale,
			Location:   body.Location,
			Interests:  body.Interests,
		})
		if errors.Is(err, recommend.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			slog.Error("failed to onboard user", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to save onboarding")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":              profile.UserID,
			"demographics":         profile.Demographics,
			"preferred_categories": profile.PreferredCategories,
		})
	}
}

// GetPriors handles GET /users/{id}/priors.
func GetPriors(u Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := pathParam(r, "id")
		priors, err := u.Priors(r.Context(), userID)
		if errors.Is(err, recommend.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			slog.Error("failed to get priors", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to get priors")
			return
		}

		writeJSON(w, http.StatusOK, priors)
	}
}

// GetLearningPlan handles GET /users/{id}/learning-plan.
func GetLearningPlan(u Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := pathParam(r, "id")
		plan, err := u.LearningPlan(r.Context(), userID)
		if errors.Is(err, recommend.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			slog.Error("failed to get learning plan", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to get learning plan")
			return
		}

		writeJSON(w, http.StatusOK, plan)
	}
}
