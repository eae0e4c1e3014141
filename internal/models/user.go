package models

import "time"

// User は登録済みの利用者アカウントです。PasswordHash は常に bcrypt ハッシュを保持します。
type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Birthday     time.Time `json:"birthday"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PublicUser はクライアントへ返してよい項目だけを持つビューです。
type PublicUser struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
}

// Public はパスワードハッシュを含まないビューを返します。
func (u *User) Public() PublicUser {
	if u == nil {
		return PublicUser{}
	}
	return PublicUser{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
	}
}

// UserDetail は管理者向けの詳細ビューです（ハッシュは含みません）。
type UserDetail struct {
	PublicUser
	Birthday    string    `json:"birthday"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Detail は管理者向けの詳細ビューを返します。
func (u *User) Detail() UserDetail {
	if u == nil {
		return UserDetail{}
	}
	return UserDetail{
		PublicUser:  u.Public(),
		Birthday:    u.Birthday.Format(DateLayout),
		PhoneNumber: u.PhoneNumber,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// DateLayout は日付項目の入出力フォーマットです。
const DateLayout = "2006-01-02"
