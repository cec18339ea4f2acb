package queue

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/FulfillmentGo/pkg/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	store := NewStore(mock, testLogger(), time.Second, time.Minute, time.Minute)
	return store, mock
}

func TestStore_Enqueue(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	payload := []byte(`{"order_id":"order-001"}`)

	mock.ExpectQuery("INSERT INTO jobs").
		WithArgs("payments", payload, 3).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.Enqueue(context.Background(), "payments", payload, 3)

	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Enqueue_ClampsMaxAttempts(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO jobs").
		WithArgs("payments", []byte("x"), 1).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

	_, err := store.Enqueue(context.Background(), "payments", []byte("x"), 0)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Claim_ReturnsJob(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE jobs").
		WithArgs("events", time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"id", "queue", "payload", "attempts", "max_attempts"}).
			AddRow(int64(7), "events", []byte("payload"), 1, 5))

	job, err := store.Claim(context.Background(), "events")

	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, int64(7), job.ID)
	assert.Equal(t, "events", job.Queue)
	assert.Equal(t, []byte("payload"), job.Payload)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, 5, job.MaxAttempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Claim_RetakesJobPastLease(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	// The claim predicate also matches processing rows whose updated_at is
	// older than the lease, so a job abandoned by a crashed worker is
	// redelivered instead of sticking in processing forever. The retake
	// increments attempts, reflected in the returned job.
	mock.ExpectQuery(`status = 'processing' AND updated_at <= NOW\(\) - \$2`).
		WithArgs("events", time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"id", "queue", "payload", "attempts", "max_attempts"}).
			AddRow(int64(7), "events", []byte("payload"), 2, 5))

	job, err := store.Claim(context.Background(), "events")

	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Claim_DefaultLease(t *testing.T) {
	mockPool, err := database.NewMockPool()
	require.NoError(t, err)
	defer mockPool.Close()
	store := NewStore(mockPool, testLogger(), time.Second, time.Minute, 0)

	mockPool.ExpectQuery("UPDATE jobs").
		WithArgs("events", 5*time.Minute).
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Claim(context.Background(), "events")

	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStore_Claim_EmptyQueue(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE jobs").
		WithArgs("events", time.Minute).
		WillReturnError(pgx.ErrNoRows)

	job, err := store.Claim(context.Background(), "events")

	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestStore_Complete(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE jobs SET status = 'completed'").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.Complete(context.Background(), 7)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Fail_Reschedules(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	job := &Job{ID: 7, Queue: "payments", Attempts: 1, MaxAttempts: 3}

	// attempts=1 gives baseDelay<<1 = 2s backoff before the next run.
	mock.ExpectExec("UPDATE jobs SET status = 'pending'").
		WithArgs(int64(7), 2, "charge declined", 2*time.Second).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dead, err := store.Fail(context.Background(), job, errors.New("charge declined"))

	require.NoError(t, err)
	assert.False(t, dead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Fail_ExhaustedGoesDead(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	job := &Job{ID: 7, Queue: "payments", Attempts: 2, MaxAttempts: 3}

	mock.ExpectExec("UPDATE jobs SET status = 'dead'").
		WithArgs(int64(7), 3, "charge declined").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dead, err := store.Fail(context.Background(), job, errors.New("charge declined"))

	require.NoError(t, err)
	assert.True(t, dead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RetryDelay(t *testing.T) {
	store := NewStore(nil, testLogger(), time.Second, time.Minute, time.Minute)

	tests := []struct {
		name     string
		attempts int
		want     time.Duration
	}{
		{name: "first retry", attempts: 0, want: time.Second},
		{name: "second retry", attempts: 1, want: 2 * time.Second},
		{name: "third retry", attempts: 2, want: 4 * time.Second},
		{name: "capped at max", attempts: 10, want: time.Minute},
		{name: "huge attempts do not overflow", attempts: 64, want: time.Minute},
		{name: "negative treated as zero", attempts: -3, want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, store.retryDelay(tt.attempts))
		})
	}
}
