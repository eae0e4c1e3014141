package jobs

// タスク種別
const (
	TypePurgeUserSessions = "sessions:purge_user"
	TypeMarkOverdue       = "loans:mark_overdue"
	TypeReapSessions      = "sessions:reap"

	queueName = "maintenance"
)

// PurgeUserSessionsPayload は利用者削除後のセッション破棄ジョブのペイロードです。
type PurgeUserSessionsPayload struct {
	UserID string `json:"userId"`
}
