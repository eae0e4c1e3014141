package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var sessionsBucket = []byte("sessions")

var (
	_ Store  = (*BoltStore)(nil)
	_ Reaper = (*BoltStore)(nil)
)

// BoltStore は bbolt ファイルにセッションを保存します。
// 期限は Resolve 時に確認し、期限切れのエントリは Reap でまとめて削除します。
type BoltStore struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewBoltStore は開いている DB から BoltStore を作成します。
func NewBoltStore(db *bbolt.DB, ttl time.Duration) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}
	return &BoltStore{db: db, ttl: normalizeTTL(ttl), now: time.Now}, nil
}

// OpenBoltStore は path の DB を開いて BoltStore を作成します。
func OpenBoltStore(path string, ttl time.Duration) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	store, err := NewBoltStore(db, ttl)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close は DB を閉じます。
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Create(ctx context.Context, userID string) (string, error) {
	record, err := newRecord(userID, s.now(), s.ttl)
	if err != nil {
		return "", err
	}
	key, err := NewKey()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(key), data)
	})
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return key, nil
}

func (s *BoltStore) Resolve(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	var record *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		record = &r
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if record == nil || record.Expired(s.now()) {
		return "", false, nil
	}
	return record.UserID, true, nil
}

func (s *BoltStore) Destroy(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(key))
	})
}

func (s *BoltStore) DestroyUser(ctx context.Context, userID string) (int, error) {
	return s.deleteWhere(func(r *Record) bool { return r.UserID == userID })
}

// Reap は期限切れのセッションを削除します。
func (s *BoltStore) Reap(ctx context.Context) (int, error) {
	now := s.now()
	return s.deleteWhere(func(r *Record) bool { return r.Expired(now) })
}

func (s *BoltStore) deleteWhere(match func(*Record) bool) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		var doomed [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var r Record
			// 壊れたエントリも削除対象にする
			if err := json.Unmarshal(v, &r); err != nil || match(&r) {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(doomed)
		return nil
	})
	return n, err
}
