// Package session はサーバー側セッション（セッションキー → 利用者 ID と有効期限）を管理します。
//
// バックエンド:
//   - RedisStore:  Redis のキー TTL で失効（本番用）
//   - BoltStore:   bbolt ファイル。参照時に期限を確認し、Reap で掃除
//   - MemoryStore: プロセス内マップ（開発・テスト用）
//
// いずれも作成時刻から固定 TTL で失効し、期限切れのエントリは Resolve で存在しないものとして扱います。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL はセッションの既定の有効期間です。
const DefaultTTL = time.Hour

const keyBytes = 32

// ErrEmptyUserID は利用者 ID なしでセッションを作成しようとした場合のエラーです。
var ErrEmptyUserID = errors.New("session: user id is required")

// Store はセッションの作成・解決・破棄を行います。
type Store interface {
	// Create は userID に紐づく新しいセッションを作成し、キーを返します。
	Create(ctx context.Context, userID string) (string, error)
	// Resolve はキーに対応する利用者 ID を返します。期限切れ・未登録なら ok=false です。
	Resolve(ctx context.Context, key string) (userID string, ok bool, err error)
	// Destroy はセッションを破棄します。存在しないキーはエラーにしません。
	Destroy(ctx context.Context, key string) error
	// DestroyUser は利用者のセッションをすべて破棄し、破棄した件数を返します。
	DestroyUser(ctx context.Context, userID string) (int, error)
}

// Reaper は期限切れエントリを能動的に削除できるバックエンドです。
type Reaper interface {
	Reap(ctx context.Context) (int, error)
}

// Record は保存されるセッションの内容です。
type Record struct {
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired は now 時点で期限切れかどうかを返します。
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func newRecord(userID string, now time.Time, ttl time.Duration) (*Record, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	return &Record{
		UserID:    userID,
		CreatedAt: now.UTC(),
		ExpiresAt: now.UTC().Add(ttl),
	}, nil
}

// NewKey は推測不能なセッションキーを生成します。
func NewKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
