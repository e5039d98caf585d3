package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transparencia-br/fiscal/pkg/models"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewClientFromDB(db), mock
}

func TestCreatePending(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectExec("INSERT INTO investigations").
		WithArgs("inv-1", "user-7", nil, "contratos suspeitos", "pending", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.CreatePending(context.Background(), models.Context{
		InvestigationID: "inv-1",
		UserID:          "user-7",
		Query:           "contratos suspeitos",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRunning(t *testing.T) {
	t.Run("updates pending row", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectExec("UPDATE investigations SET status").
			WithArgs("running", "inv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, c.MarkRunning(context.Background(), "inv-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectExec("UPDATE investigations SET status").
			WithArgs("running", "inv-missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := c.MarkRunning(context.Background(), "inv-missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSaveResult(t *testing.T) {
	result := &models.InvestigationResult{
		InvestigationID: "inv-1",
		Intent:          models.IntentContractAnomalyDetection,
		Status:          models.InvestigationCompleted,
		Anomalies:       []models.Anomaly{{AnomalyID: "anom-1", Kind: models.AnomalyPriceDeviation}},
	}

	t.Run("stores document", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectExec("UPDATE investigations").
			WithArgs("contract_anomaly_detection", "completed", sqlmock.AnyArg(), 1, sqlmock.AnyArg(), "inv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, c.SaveResult(context.Background(), result))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row vanished", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectExec("UPDATE investigations").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, c.SaveResult(context.Background(), result), ErrNotFound)
	})
}

func TestGetResult(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		stored := &models.InvestigationResult{
			InvestigationID: "inv-1",
			Intent:          models.IntentSupplierInvestigation,
			Status:          models.InvestigationCompleted,
			Anomalies:       []models.Anomaly{},
		}
		doc, err := json.Marshal(stored)
		require.NoError(t, err)

		c, mock := newMockClient(t)
		mock.ExpectQuery("SELECT result FROM investigations").
			WithArgs("inv-1").
			WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(doc))

		got, err := c.GetResult(context.Background(), "inv-1")
		require.NoError(t, err)
		assert.Equal(t, stored.InvestigationID, got.InvestigationID)
		assert.Equal(t, stored.Intent, got.Intent)
		assert.Equal(t, stored.Status, got.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectQuery("SELECT result FROM investigations").
			WithArgs("inv-missing").
			WillReturnRows(sqlmock.NewRows([]string{"result"}))

		_, err := c.GetResult(context.Background(), "inv-missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("still running", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectQuery("SELECT result FROM investigations").
			WithArgs("inv-1").
			WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow([]byte(nil)))

		_, err := c.GetResult(context.Background(), "inv-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGetSummary(t *testing.T) {
	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	completed := created.Add(30 * time.Second)

	t.Run("completed row", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectQuery("SELECT id, query").
			WithArgs("inv-1").
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "query", "intent", "status", "anomaly_count", "created_at", "completed_at"},
			).AddRow("inv-1", "contratos", "contract_anomaly_detection", "completed", 3, created, completed))

		s, err := c.GetSummary(context.Background(), "inv-1")
		require.NoError(t, err)
		assert.Equal(t, models.IntentContractAnomalyDetection, s.Intent)
		assert.Equal(t, models.InvestigationCompleted, s.Status)
		assert.Equal(t, 3, s.AnomalyCount)
		require.NotNil(t, s.CompletedAt)
		assert.Equal(t, completed, *s.CompletedAt)
	})

	t.Run("pending row has no intent or completion", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectQuery("SELECT id, query").
			WithArgs("inv-2").
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "query", "intent", "status", "anomaly_count", "created_at", "completed_at"},
			).AddRow("inv-2", "gastos", "", "pending", 0, created, nil))

		s, err := c.GetSummary(context.Background(), "inv-2")
		require.NoError(t, err)
		assert.Empty(t, string(s.Intent))
		assert.Equal(t, models.InvestigationPending, s.Status)
		assert.Nil(t, s.CompletedAt)
	})

	t.Run("unknown id", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectQuery("SELECT id, query").
			WithArgs("inv-missing").
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "query", "intent", "status", "anomaly_count", "created_at", "completed_at"},
			))

		_, err := c.GetSummary(context.Background(), "inv-missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestList(t *testing.T) {
	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("newest first with limit", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectQuery("SELECT id, query").
			WithArgs("", 2).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "query", "intent", "status", "anomaly_count", "created_at", "completed_at"},
			).
				AddRow("inv-2", "b", "", "running", 0, created.Add(time.Minute), nil).
				AddRow("inv-1", "a", "general_investigation", "completed", 0, created, created))

		out, err := c.List(context.Background(), "", 2)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "inv-2", out[0].ID)
		assert.Equal(t, "inv-1", out[1].ID)
	})

	t.Run("session filter passed through", func(t *testing.T) {
		c, mock := newMockClient(t)
		mock.ExpectQuery("SELECT id, query").
			WithArgs("sess-9", 50).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "query", "intent", "status", "anomaly_count", "created_at", "completed_at"},
			))

		out, err := c.List(context.Background(), "sess-9", 0)
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	h, err := NewClientFromDB(db).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
