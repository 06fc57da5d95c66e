package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mbolis/dcforms/pos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationLogCall(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO integration_log")).
		WithArgs("smrt", "create_customer", `{"email":"a@b.c"}`, "", "missing_agent_id: nope", pos.OutcomeError, int64(15), at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewIntegrationLog(db).LogCall(context.Background(), pos.Entry{
		Vendor:    "smrt",
		Operation: "create_customer",
		Request:   map[string]any{"email": "a@b.c"},
		Error:     "missing_agent_id: nope",
		Outcome:   pos.OutcomeError,
		Duration:  15 * time.Millisecond,
		Time:      at,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationLogRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Now()
	rows := sqlmock.NewRows([]string{"id", "vendor", "operation", "request", "response", "error", "outcome", "duration_ms", "created_at"}).
		AddRow(2, "spot", "customer_exists", "{}", `{"exists":false}`, "", pos.OutcomeNotFound, 40, at).
		AddRow(1, "spot", "test_connection", "", "{}", "", pos.OutcomeSuccess, 12, at)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, vendor, operation")).
		WithArgs("", "", 100).
		WillReturnRows(rows)

	out, err := NewIntegrationLog(db).Recent(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, pos.OutcomeNotFound, out[0].Outcome)
	assert.Equal(t, int64(40), out[0].DurationMS)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationLogPrune(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM integration_log")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := NewIntegrationLog(db).Prune(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
