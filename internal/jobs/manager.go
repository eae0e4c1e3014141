// Package jobs はバックグラウンドジョブ（セッション破棄・延滞判定・期限切れセッション掃除）を管理します。
//
// QUEUE_REDIS_URL が設定されていれば Asynq のキューとスケジューラーで実行し、
// 未設定の場合はプロセス内の cron と同期呼び出しで代替します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/yourusername/bookflow/internal/config"
)

// Manager はジョブの投入と定期実行を担います。
type Manager struct {
	cfg    *config.Config
	worker *Worker

	// キューモード
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux

	// 同期モード
	cron *cron.Cron
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, worker *Worker) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if worker == nil {
		return nil, errors.New("worker is nil")
	}

	manager := &Manager{cfg: cfg, worker: worker}
	if cfg.QueueRedisURL == "" {
		manager.cron = cron.New()
		return manager, nil
	}

	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	manager.client = asynq.NewClient(opt)
	manager.server = asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)
	manager.scheduler = asynq.NewScheduler(opt, nil)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePurgeUserSessions, manager.handlePurgeUserSessions)
	mux.HandleFunc(TypeMarkOverdue, manager.handleMarkOverdue)
	mux.HandleFunc(TypeReapSessions, manager.handleReapSessions)
	manager.mux = mux
	return manager, nil
}

// Queued はキューモードで動作しているかを返します。
func (m *Manager) Queued() bool {
	return m.client != nil
}

// StartWorkers はワーカーと定期実行をバックグラウンドで起動します。
func (m *Manager) StartWorkers() error {
	if !m.Queued() {
		return m.startInline()
	}

	if _, err := m.scheduler.Register(m.cfg.OverdueSweepCron, asynq.NewTask(TypeMarkOverdue, nil), asynq.Queue(queueName)); err != nil {
		return fmt.Errorf("register %s: %w", TypeMarkOverdue, err)
	}
	if m.worker.CanReap() {
		if _, err := m.scheduler.Register(m.cfg.SessionReapCron, asynq.NewTask(TypeReapSessions, nil), asynq.Queue(queueName)); err != nil {
			return fmt.Errorf("register %s: %w", TypeReapSessions, err)
		}
	}

	if err := m.server.Start(m.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	if err := m.scheduler.Start(); err != nil {
		m.server.Shutdown()
		return fmt.Errorf("start asynq scheduler: %w", err)
	}
	slog.Info("background jobs started", "mode", "queue")
	return nil
}

func (m *Manager) startInline() error {
	if _, err := m.cron.AddFunc(m.cfg.OverdueSweepCron, func() {
		if _, err := m.worker.MarkOverdue(context.Background()); err != nil {
			slog.Error("overdue sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %s: %w", TypeMarkOverdue, err)
	}
	if m.worker.CanReap() {
		if _, err := m.cron.AddFunc(m.cfg.SessionReapCron, func() {
			if _, err := m.worker.ReapSessions(context.Background()); err != nil {
				slog.Error("session reap failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", TypeReapSessions, err)
		}
	}
	m.cron.Start()
	slog.Info("background jobs started", "mode", "inline")
	return nil
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.Queued() {
		select {
		case <-m.cron.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	m.scheduler.Shutdown()
	m.server.Shutdown()
	return m.client.Close()
}

// UserDeleted は利用者削除後のセッション破棄を依頼します。users.DeleteListener を満たします。
func (m *Manager) UserDeleted(ctx context.Context, userID string) error {
	if !m.Queued() {
		_, err := m.worker.PurgeUserSessions(ctx, userID)
		return err
	}

	body, err := json.Marshal(PurgeUserSessionsPayload{UserID: userID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypePurgeUserSessions, body, asynq.Queue(queueName))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypePurgeUserSessions, err)
	}
	return nil
}

func (m *Manager) handlePurgeUserSessions(ctx context.Context, task *asynq.Task) error {
	var payload PurgeUserSessionsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.UserID == "" {
		return fmt.Errorf("missing userId in payload: %w", asynq.SkipRetry)
	}
	_, err := m.worker.PurgeUserSessions(ctx, payload.UserID)
	return err
}

func (m *Manager) handleMarkOverdue(ctx context.Context, task *asynq.Task) error {
	_, err := m.worker.MarkOverdue(ctx)
	return err
}

func (m *Manager) handleReapSessions(ctx context.Context, task *asynq.Task) error {
	_, err := m.worker.ReapSessions(ctx)
	return err
}
