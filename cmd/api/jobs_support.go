package main

import (
	"github.com/yourusername/bookflow/internal/config"
	"github.com/yourusername/bookflow/internal/jobs"
	"github.com/yourusername/bookflow/internal/metrics"
	"github.com/yourusername/bookflow/internal/session"
	"github.com/yourusername/bookflow/internal/storage"
)

// setupJobs はジョブの実処理とマネージャーを組み立てます。
// QUEUE_REDIS_URL が空なら同期モードで動きます。
func setupJobs(cfg *config.Config, sessions session.Store, loans storage.LoanRepository, rec metrics.Recorder) (*jobs.Manager, error) {
	worker := jobs.NewWorker(sessions, loans, rec)
	return jobs.NewManager(cfg, worker)
}
