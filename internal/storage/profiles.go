package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hoanghai1803/lumen/internal/models"
)

// GetProfile returns the profile for userID, or ErrNotFound.
func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var (
		p                           models.UserProfile
		history, catTime, preferred string
		demographics                sql.NullString
		lastActive, createdAt       string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, history, category_time, preferred_categories, demographics,
		        last_active, created_at
		 FROM user_profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &history, &catTime, &preferred, &demographics, &lastActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile %s: %w", userID, err)
	}

	if err := json.Unmarshal([]byte(history), &p.History); err != nil {
		return nil, fmt.Errorf("decoding history for %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(catTime), &p.CategoryTime); err != nil {
		return nil, fmt.Errorf("decoding category time for %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(preferred), &p.PreferredCategories); err != nil {
		return nil, fmt.Errorf("decoding preferred categories for %s: %w", userID, err)
	}
	if demographics.Valid && demographics.String != "" {
		p.Demographics = &models.Demographics{}
		if err := json.Unmarshal([]byte(demographics.String), p.Demographics); err != nil {
			return nil, fmt.Errorf("decoding demographics for %s: %w", userID, err)
		}
	}
	if p.CategoryTime == nil {
		p.CategoryTime = make(map[string]float64)
	}
	p.LastActive = parseTime(lastActive)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// SaveProfile inserts or replaces the profile.
func (s *SQLStore) SaveProfile(ctx context.Context, p *models.UserProfile) error {
	history, err := json.Marshal(nonNil(p.History))
	if err != nil {
		return fmt.Errorf("encoding history for %s: %w", p.UserID, err)
	}
	catTime := p.CategoryTime
	if catTime == nil {
		catTime = map[string]float64{}
	}
	catJSON, err := json.Marshal(catTime)
	if err != nil {
		return fmt.Errorf("encoding category time for %s: %w", p.UserID, err)
	}
	preferred, err := json.Marshal(nonNil(p.PreferredCategories))
	if err != nil {
		return fmt.Errorf("encoding preferred categories for %s: %w", p.UserID, err)
	}
	var demographics sql.NullString
	if p.Demographics != nil {
		b, err := json.Marshal(p.Demographics)
		if err != nil {
			return fmt.Errorf("encoding demographics for %s: %w", p.UserID, err)
		}
		demographics = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_profiles
		   (user_id, history, category_time, preferred_categories, demographics, last_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   history = excluded.history,
		   category_time = excluded.category_time,
		   preferred_categories = excluded.preferred_categories,
		   demographics = excluded.demographics,
		   last_active = excluded.last_active`,
		p.UserID, string(history), string(catJSON), string(preferred), demographics,
		formatTime(p.LastActive), formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving profile %s: %w", p.UserID, err)
	}
	return nil
}

// nonNil keeps empty slices encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
