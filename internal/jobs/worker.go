package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yourusername/bookflow/internal/metrics"
	"github.com/yourusername/bookflow/internal/session"
	"github.com/yourusername/bookflow/internal/storage"
)

// Worker は各ジョブの実処理です。キュー経由でも同期実行でも同じ処理を使います。
type Worker struct {
	sessions session.Store
	loans    storage.LoanRepository
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewWorker は Worker を作成します。rec が nil の場合は記録しません。
func NewWorker(sessions session.Store, loans storage.LoanRepository, rec metrics.Recorder) *Worker {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Worker{
		sessions: sessions,
		loans:    loans,
		metrics:  rec,
		now:      time.Now,
	}
}

// CanReap はセッションストアが能動的な掃除に対応しているかを返します。
func (w *Worker) CanReap() bool {
	_, ok := w.sessions.(session.Reaper)
	return ok
}

// PurgeUserSessions は利用者のセッションをすべて破棄します。
func (w *Worker) PurgeUserSessions(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, errors.New("userId is required")
	}
	n, err := w.sessions.DestroyUser(ctx, userID)
	w.record(TypePurgeUserSessions, err)
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "purged user sessions", "user_id", userID, "count", n)
	return n, nil
}

// MarkOverdue は返却期限を過ぎた貸出を overdue にします。
func (w *Worker) MarkOverdue(ctx context.Context) (int, error) {
	n, err := w.loans.MarkOverdue(ctx, w.now().UTC())
	w.record(TypeMarkOverdue, err)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.InfoContext(ctx, "marked loans overdue", "count", n)
	}
	return n, nil
}

// ReapSessions は期限切れセッションを削除します。Reaper でないストアでは何もしません。
func (w *Worker) ReapSessions(ctx context.Context) (int, error) {
	reaper, ok := w.sessions.(session.Reaper)
	if !ok {
		return 0, nil
	}
	n, err := reaper.Reap(ctx)
	w.record(TypeReapSessions, err)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.InfoContext(ctx, "reaped expired sessions", "count", n)
	}
	return n, nil
}

func (w *Worker) record(task string, err error) {
	if err != nil {
		w.metrics.RecordJob(task, metrics.OutcomeFailure)
		return
	}
	w.metrics.RecordJob(task, metrics.OutcomeSuccess)
}
