// Package metrics は認証まわりの Prometheus メトリクスの収集と公開を提供します。
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベル
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeThrottled = "throttled"

	ResolutionAccepted    = "accepted"
	ResolutionNoSession   = "no_session"
	ResolutionExpired     = "expired"
	ResolutionStale       = "stale_identity"
	ResolutionStoreFailed = "store_error"
)

// Recorder はメトリクス記録のインターフェースです。auth パッケージから利用します。
type Recorder interface {
	RecordLogin(outcome string)
	RecordRegistration(outcome string)
	RecordSessionResolution(outcome string)
	RecordAuthorizationDenied(role string)
	RecordJob(task string, outcome string)
}

// Collector は Prometheus メトリクスを収集する実装です。
type Collector struct {
	logins        *prometheus.CounterVec
	registrations *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
	denials       *prometheus.CounterVec
	jobs          *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector は新しい Collector を生成し、指定されたレジストリに登録します。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookflow_logins_total",
			Help: "ログイン試行の合計数（結果別）",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookflow_registrations_total",
			Help: "利用者登録の合計数（結果別）",
		}, []string{"outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookflow_session_resolutions_total",
			Help: "セッション解決の合計数（結果別）",
		}, []string{"outcome"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookflow_authorization_denied_total",
			Help: "ロール不足で拒否したリクエスト数",
		}, []string{"role"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookflow_jobs_total",
			Help: "バックグラウンドジョブの実行数（タスク・結果別）",
		}, []string{"task", "outcome"}),
	}

	reg.MustRegister(c.logins, c.registrations, c.resolutions, c.denials, c.jobs)
	return c
}

// RecordLogin はログイン試行を記録します。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordRegistration は利用者登録を記録します。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordSessionResolution はセッション解決の結果を記録します。
func (c *Collector) RecordSessionResolution(outcome string) {
	c.resolutions.WithLabelValues(outcome).Inc()
}

// RecordAuthorizationDenied は認可拒否を記録します。
func (c *Collector) RecordAuthorizationDenied(role string) {
	c.denials.WithLabelValues(role).Inc()
}

// RecordJob はジョブの実行結果を記録します。
func (c *Collector) RecordJob(task string, outcome string) {
	c.jobs.WithLabelValues(task, outcome).Inc()
}

// Nop は何も記録しない Recorder です。
type Nop struct{}

func (Nop) RecordLogin(string)               {}
func (Nop) RecordRegistration(string)        {}
func (Nop) RecordSessionResolution(string)   {}
func (Nop) RecordAuthorizationDenied(string) {}
func (Nop) RecordJob(string, string)         {}

// Handler は Prometheus スクレイプ用の gin ハンドラーを返します。
func Handler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
