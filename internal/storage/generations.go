package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hoanghai1803/lumen/internal/models"
)

// SaveGeneration records a served generation so it can be polled by
// request ID. Saving the same request ID twice keeps the first record.
func (s *SQLStore) SaveGeneration(ctx context.Context, rec *models.GenerationRecord) error {
	req, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("encoding generation request %s: %w", rec.RequestID, err)
	}
	resp, err := json.Marshal(rec.Response)
	if err != nil {
		return fmt.Errorf("encoding generation response %s: %w", rec.RequestID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO generations
		   (request_id, kind, article_id, user_id, request, response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, string(rec.Request.Kind), rec.Request.ArticleID, rec.Request.UserID,
		string(req), string(resp), formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving generation %s: %w", rec.RequestID, err)
	}
	return nil
}

// GetGeneration returns the record for requestID, or ErrNotFound.
func (s *SQLStore) GetGeneration(ctx context.Context, requestID string) (*models.GenerationRecord, error) {
	var (
		rec                  models.GenerationRecord
		req, resp, createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT request_id, request, response, created_at FROM generations WHERE request_id = ?`,
		requestID).Scan(&rec.RequestID, &req, &resp, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting generation %s: %w", requestID, err)
	}

	if err := json.Unmarshal([]byte(req), &rec.Request); err != nil {
		return nil, fmt.Errorf("decoding generation request %s: %w", requestID, err)
	}
	if err := json.Unmarshal([]byte(resp), &rec.Response); err != nil {
		return nil, fmt.Errorf("decoding generation response %s: %w", requestID, err)
	}
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}
