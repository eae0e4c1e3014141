package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/bookflow/internal/config"
	"github.com/yourusername/bookflow/internal/models"
	"github.com/yourusername/bookflow/internal/session"
	"github.com/yourusername/bookflow/internal/storage/memory"
)

type jobRecorder struct {
	jobs map[string][]string
}

func (r *jobRecorder) RecordLogin(string)               {}
func (r *jobRecorder) RecordRegistration(string)        {}
func (r *jobRecorder) RecordSessionResolution(string)   {}
func (r *jobRecorder) RecordAuthorizationDenied(string) {}
func (r *jobRecorder) RecordJob(task, outcome string) {
	if r.jobs == nil {
		r.jobs = make(map[string][]string)
	}
	r.jobs[task] = append(r.jobs[task], outcome)
}

// plainSessions は Reaper を実装しないストアを模します。
type plainSessions struct {
	session.Store
}

type brokenSessions struct {
	session.Store
}

func (brokenSessions) DestroyUser(context.Context, string) (int, error) {
	return 0, errors.New("store down")
}

func TestPurgeUserSessions(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewMemoryStore(time.Hour)
	rec := &jobRecorder{}
	w := NewWorker(sessions, memory.New(), rec)

	k1, err := sessions.Create(ctx, "u1")
	require.NoError(t, err)
	_, err = sessions.Create(ctx, "u1")
	require.NoError(t, err)
	k3, err := sessions.Create(ctx, "u2")
	require.NoError(t, err)

	n, err := w.PurgeUserSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err := sessions.Resolve(ctx, k1)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = sessions.Resolve(ctx, k3)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = w.PurgeUserSessions(ctx, "")
	assert.Error(t, err)
	assert.Equal(t, []string{"success"}, rec.jobs[TypePurgeUserSessions])
}

func TestPurgeUserSessionsFailure(t *testing.T) {
	rec := &jobRecorder{}
	w := NewWorker(brokenSessions{session.NewMemoryStore(time.Hour)}, memory.New(), rec)

	_, err := w.PurgeUserSessions(context.Background(), "u1")
	assert.Error(t, err)
	assert.Equal(t, []string{"failure"}, rec.jobs[TypePurgeUserSessions])
}

func TestMarkOverdue(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	late, err := store.CreateLoan(ctx, &models.Loan{
		UserID: "u1", BookID: "b1",
		LoanDate: now.AddDate(0, 0, -20), DueDate: now.AddDate(0, 0, -1),
		Status: models.LoanActive,
	})
	require.NoError(t, err)
	onTime, err := store.CreateLoan(ctx, &models.Loan{
		UserID: "u1", BookID: "b2",
		LoanDate: now.AddDate(0, 0, -2), DueDate: now.AddDate(0, 0, 5),
		Status: models.LoanActive,
	})
	require.NoError(t, err)

	w := NewWorker(session.NewMemoryStore(time.Hour), store, nil)
	w.now = func() time.Time { return now }

	n, err := w.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.FindLoanByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanOverdue, got.Status)
	got, err = store.FindLoanByID(ctx, onTime.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanActive, got.Status)

	n, err = w.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReapSessions(t *testing.T) {
	ctx := context.Background()
	w := NewWorker(session.NewMemoryStore(time.Hour), memory.New(), nil)
	assert.True(t, w.CanReap())
	_, err := w.ReapSessions(ctx)
	require.NoError(t, err)

	plain := NewWorker(plainSessions{session.NewMemoryStore(time.Hour)}, memory.New(), nil)
	assert.False(t, plain.CanReap())
	n, err := plain.ReapSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, NewWorker(session.NewMemoryStore(0), memory.New(), nil))
	assert.Error(t, err)
	_, err = NewManager(&config.Config{}, nil)
	assert.Error(t, err)
}

func TestInlineManager(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewMemoryStore(time.Hour)
	cfg := &config.Config{
		OverdueSweepCron: "*/15 * * * *",
		SessionReapCron:  "*/10 * * * *",
	}
	m, err := NewManager(cfg, NewWorker(sessions, memory.New(), nil))
	require.NoError(t, err)
	assert.False(t, m.Queued())

	key, err := sessions.Create(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, m.UserDeleted(ctx, "u1"))
	_, ok, err := sessions.Resolve(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.StartWorkers())
	assert.Len(t, m.cron.Entries(), 2)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(shutdownCtx))
}

func TestInlineManagerRejectsBadSchedule(t *testing.T) {
	cfg := &config.Config{OverdueSweepCron: "not a cron", SessionReapCron: "*/10 * * * *"}
	m, err := NewManager(cfg, NewWorker(session.NewMemoryStore(time.Hour), memory.New(), nil))
	require.NoError(t, err)
	assert.Error(t, m.StartWorkers())
}

func TestHandlePurgeUserSessionsPayload(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewMemoryStore(time.Hour)
	m := &Manager{worker: NewWorker(sessions, memory.New(), nil)}

	err := m.handlePurgeUserSessions(ctx, asynq.NewTask(TypePurgeUserSessions, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = m.handlePurgeUserSessions(ctx, asynq.NewTask(TypePurgeUserSessions, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	key, err := sessions.Create(ctx, "u9")
	require.NoError(t, err)
	require.NoError(t, m.handlePurgeUserSessions(ctx, asynq.NewTask(TypePurgeUserSessions, []byte(`{"userId":"u9"}`))))
	_, ok, err := sessions.Resolve(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
