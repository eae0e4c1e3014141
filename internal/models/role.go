// Package models はアプリケーション全体で共有するドメインモデルを定義します。
package models

// Role は認可に使う粗いロールを表します。
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole は文字列を Role に変換します。未知の値は false を返します。
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Valid は定義済みのロールかどうかを返します。
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

func (r Role) String() string {
	return string(r)
}

// RoleSet はロールの集合です。
type RoleSet map[Role]struct{}

// NewRoleSet は指定ロールからなる集合を作成します。
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains は r が集合に含まれるかを返します。
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}
