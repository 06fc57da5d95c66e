package database

import (
	"context"
	"database/sql"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/pos"
)

// IntegrationLog stores every POS adapter call in the integration_log table.
type IntegrationLog struct {
	db *sql.DB
}

func NewIntegrationLog(db *sql.DB) *IntegrationLog {
	return &IntegrationLog{db}
}

type IntegrationLogRow struct {
	ID         int       `json:"id"`
	Vendor     string    `json:"vendor"`
	Operation  string    `json:"operation"`
	Request    string    `json:"request"`
	Response   string    `json:"response"`
	Error      string    `json:"error"`
	Outcome    string    `json:"outcome"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func encodeLogValue(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func (l *IntegrationLog) LogCall(ctx context.Context, e pos.Entry) error {
	created := e.Time
	if created.IsZero() {
		created = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO integration_log (vendor, operation, request, response, error, outcome, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Vendor,
		e.Operation,
		encodeLogValue(e.Request),
		encodeLogValue(e.Response),
		e.Error,
		e.Outcome,
		e.Duration.Milliseconds(),
		created.UTC(),
	)
	return err
}

// Recent returns the newest entries first, optionally filtered by outcome.
func (l *IntegrationLog) Recent(ctx context.Context, outcome string, limit int) ([]IntegrationLogRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, vendor, operation, request, response, error, outcome, duration_ms, created_at
		FROM integration_log
		WHERE ? = '' OR outcome = ?
		ORDER BY id DESC
		LIMIT ?`,
		outcome, outcome, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []IntegrationLogRow{}
	for rows.Next() {
		var r IntegrationLogRow
		err = rows.Scan(&r.ID, &r.Vendor, &r.Operation, &r.Request, &r.Response, &r.Error, &r.Outcome, &r.DurationMS, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes entries older than the given age and reports how many were removed.
func (l *IntegrationLog) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM integration_log WHERE created_at < ?`, time.Now().Add(-olderThan).UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
