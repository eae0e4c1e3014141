// Package password はパスワードの一方向ハッシュと照合を提供します。
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost は bcrypt のワークファクタ既定値です。
const DefaultCost = 10

// Hasher は bcrypt によるハッシュ化と照合を行います。
type Hasher struct {
	cost int
}

// NewHasher は Hasher を作成します。範囲外の cost は DefaultCost に丸めます。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Cost は使用中のワークファクタを返します。
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash はソルト付きハッシュを返します。
func (h *Hasher) Hash(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify は raw が hashed と一致するかを返します。不一致や壊れたハッシュは false です。
func (h *Hasher) Verify(raw, hashed string) bool {
	if hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(raw)) == nil
}
