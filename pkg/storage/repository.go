package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/transparencia-br/fiscal/pkg/models"
)

// ErrNotFound marks a lookup for an unknown investigation id.
var ErrNotFound = errors.New("investigation not found")

// Summary is one row of the investigation listing.
type Summary struct {
	ID           string                     `json:"id"`
	Query        string                     `json:"query"`
	Intent       models.Intent              `json:"intent,omitempty"`
	Status       models.InvestigationStatus `json:"status"`
	AnomalyCount int                        `json:"anomaly_count"`
	CreatedAt    time.Time                  `json:"created_at"`
	CompletedAt  *time.Time                 `json:"completed_at,omitempty"`
}

// CreatePending inserts the row at submission time, before execution.
func (c *Client) CreatePending(ctx context.Context, ic models.Context) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO investigations (id, user_id, session_id, query, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ic.InvestigationID, nullable(ic.UserID), nullable(ic.SessionID),
		ic.Query, string(models.InvestigationPending), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert investigation %s: %w", ic.InvestigationID, err)
	}
	return nil
}

// MarkRunning flips a pending row to running.
func (c *Client) MarkRunning(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE investigations SET status = $1 WHERE id = $2`,
		string(models.InvestigationRunning), id,
	)
	if err != nil {
		return fmt.Errorf("mark running %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveResult stores the terminal result document and closes the row.
func (c *Client) SaveResult(ctx context.Context, result *models.InvestigationResult) error {
	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", result.InvestigationID, err)
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE investigations
		SET intent = $1, status = $2, result = $3, anomaly_count = $4, completed_at = $5
		WHERE id = $6`,
		string(result.Intent), string(result.Status), doc,
		len(result.Anomalies), time.Now().UTC(), result.InvestigationID,
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", result.InvestigationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetResult loads the stored result document.
func (c *Client) GetResult(ctx context.Context, id string) (*models.InvestigationResult, error) {
	var doc []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT result FROM investigations WHERE id = $1`, id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", id, err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("investigation %s has no result yet: %w", id, ErrNotFound)
	}
	var result models.InvestigationResult
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	return &result, nil
}

// GetSummary loads the listing row for one investigation.
func (c *Client) GetSummary(ctx context.Context, id string) (*Summary, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, query, COALESCE(intent, ''), status, anomaly_count, created_at, completed_at
		FROM investigations WHERE id = $1`, id)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// List returns recent investigations, newest first. sessionID narrows the
// listing when non-empty.
func (c *Client) List(ctx context.Context, sessionID string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, query, COALESCE(intent, ''), status, anomaly_count, created_at, completed_at
		FROM investigations
		WHERE ($1 = '' OR session_id = $1)
		ORDER BY created_at DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*Summary, error) {
	var (
		s         Summary
		intent    string
		status    string
		completed sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Query, &intent, &status, &s.AnomalyCount, &s.CreatedAt, &completed); err != nil {
		return nil, err
	}
	s.Intent = models.Intent(intent)
	s.Status = models.InvestigationStatus(status)
	if completed.Valid {
		t := completed.Time
		s.CompletedAt = &t
	}
	return &s, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
