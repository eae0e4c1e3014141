// Package validate は入力項目ごとの名前付きバリデータを提供します。
// いずれも失敗時は KindValidation の *apperr.Error を返します。
package validate

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/yourusername/bookflow/internal/apperr"
	"github.com/yourusername/bookflow/internal/models"
)

const (
	MsgRequired = "All fields are required"
	MsgEmail    = "Please enter a valid email address"
	MsgPassword = "Password must be at least 8 characters long, contain at least one uppercase letter, one lowercase letter, and one number."
	MsgPhone    = "Please enter a valid phone number (e.g., +1234567890)"
	MsgPastDate = "Enter a valid date"
	MsgRole     = "Role must be one of: user, admin"

	MsgPasswordTooLong = "Password must be at most 72 characters long."

	minPasswordLength = 8
	// bcrypt は 72 バイトを超える入力を受け付けない
	maxPasswordLength = 72
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// E.164
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
)

// Required はいずれかの値が空白のみの場合にエラーを返します。
func Required(values ...string) error {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return apperr.Validation(MsgRequired)
		}
	}
	return nil
}

// Email はメールアドレスの形式を検証します。
func Email(email string) error {
	if !emailPattern.MatchString(email) {
		return apperr.Validation(MsgEmail)
	}
	return nil
}

// Password は 8 文字以上 72 文字以下で英大文字・英小文字・数字を各 1 文字以上含む英数字のみかを検証します。
func Password(raw string) error {
	if len(raw) < minPasswordLength {
		return apperr.Validation(MsgPassword)
	}
	if len(raw) > maxPasswordLength {
		return apperr.Validation(MsgPasswordTooLong)
	}
	var upper, lower, digit bool
	for _, r := range raw {
		switch {
		case r > unicode.MaxASCII:
			return apperr.Validation(MsgPassword)
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			return apperr.Validation(MsgPassword)
		}
	}
	if !upper || !lower || !digit {
		return apperr.Validation(MsgPassword)
	}
	return nil
}

// PhoneNumber は E.164 形式を検証します。空文字は未指定として許可します。
func PhoneNumber(phone string) error {
	if phone == "" {
		return nil
	}
	if !phonePattern.MatchString(phone) {
		return apperr.Validation(MsgPhone)
	}
	return nil
}

// Role は定義済みロールかを検証します。
func Role(raw string) (models.Role, error) {
	role, ok := models.ParseRole(strings.TrimSpace(raw))
	if !ok {
		return "", apperr.Validation(MsgRole)
	}
	return role, nil
}

// Date は YYYY-MM-DD もしくは RFC3339 の日付を解釈します。
func Date(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(models.DateLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperr.Validationf("%s must be a date in YYYY-MM-DD format", field)
}

// PastDate は t が now より厳密に過去であることを検証します。
func PastDate(t, now time.Time) error {
	if !t.Before(now) {
		return apperr.Validation(MsgPastDate)
	}
	return nil
}
