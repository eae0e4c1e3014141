// Package users は利用者アカウントの登録・参照・更新・削除を扱う Credential Store です。
// パスワードは永続化の前に必ずハッシュ化し、平文を保存しません。
package users

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/bookflow/internal/apperr"
	"github.com/yourusername/bookflow/internal/models"
	"github.com/yourusername/bookflow/internal/storage"
	"github.com/yourusername/bookflow/internal/validate"
)

const (
	MsgEmailTaken = "User already exists with this email"
	MsgInvalidID  = "Invalid user ID!"
)

// 更新を許可するフィールド
var allowedUpdates = []string{"firstName", "lastName", "birthday", "email", "password", "role", "phoneNumber"}

// PasswordHasher はパスワードのハッシュ化と照合を行います。
type PasswordHasher interface {
	Hash(raw string) (string, error)
	Verify(raw, hashed string) bool
}

// DeleteListener は利用者削除の成功後に呼ばれます。
type DeleteListener interface {
	UserDeleted(ctx context.Context, userID string) error
}

// CreateInput は利用者作成時の入力です。日付は YYYY-MM-DD で受け取ります。
type CreateInput struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Birthday    string `json:"birthday"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	PhoneNumber string `json:"phoneNumber"`
}

// Service は利用者レコードの検証と永続化をまとめます。
type Service struct {
	repo     storage.UserRepository
	hasher   PasswordHasher
	listener DeleteListener
	now      func() time.Time
}

// NewService は Service を作成します。
func NewService(repo storage.UserRepository, hasher PasswordHasher) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		now:    time.Now,
	}
}

// SetDeleteListener は削除通知先を設定します。
func (s *Service) SetDeleteListener(l DeleteListener) {
	s.listener = l
}

// Hasher は照合に使うハッシャーを返します。
func (s *Service) Hasher() PasswordHasher {
	return s.hasher
}

// FindByEmail はメールアドレスで検索します。見つからない場合は nil, nil を返します。
func (s *Service) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.FindUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

// FindByID は ID で検索します。見つからない場合は nil, nil を返します。
func (s *Service) FindByID(ctx context.Context, id string) (*models.User, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	user, err := s.repo.FindUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

// Get は ID で検索し、存在しない場合は NotFound エラーを返します。
func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("No user found with id: " + id)
	}
	return user, nil
}

// List は全利用者を返します。
func (s *Service) List(ctx context.Context) ([]*models.User, error) {
	return s.repo.ListUsers(ctx)
}

// Create は入力を検証し、パスワードをハッシュ化してから保存します。
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	if err := validate.Required(in.FirstName, in.LastName, in.Birthday, in.Email, in.Password, in.Role); err != nil {
		return nil, err
	}
	birthday, err := validate.Date("birthday", in.Birthday)
	if err != nil {
		return nil, err
	}
	if err := validate.PastDate(birthday, s.now()); err != nil {
		return nil, err
	}
	if err := validate.Email(in.Email); err != nil {
		return nil, err
	}
	if err := validate.Password(in.Password); err != nil {
		return nil, err
	}
	if err := validate.PhoneNumber(in.PhoneNumber); err != nil {
		return nil, err
	}
	role, err := validate.Role(in.Role)
	if err != nil {
		return nil, err
	}

	existing, err := s.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict(MsgEmailTaken)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal("Failed to process password", err)
	}

	created, err := s.repo.CreateUser(ctx, &models.User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Birthday:     birthday,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		PhoneNumber:  in.PhoneNumber,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil, apperr.Conflict(MsgEmailTaken)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update は許可されたフィールドだけを部分更新します。
// 許可外のキーが含まれる場合はリポジトリに触れる前に拒否します。
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) (*models.User, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := checkAllowed(fields); err != nil {
		return nil, err
	}
	values, err := stringValues(fields)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("No user found with id: " + id)
	}
	if err != nil {
		return nil, err
	}

	if v, ok := values["firstName"]; ok {
		if err := validate.Required(v); err != nil {
			return nil, err
		}
		user.FirstName = strings.TrimSpace(v)
	}
	if v, ok := values["lastName"]; ok {
		if err := validate.Required(v); err != nil {
			return nil, err
		}
		user.LastName = strings.TrimSpace(v)
	}
	if v, ok := values["birthday"]; ok {
		birthday, err := validate.Date("birthday", v)
		if err != nil {
			return nil, err
		}
		if err := validate.PastDate(birthday, s.now()); err != nil {
			return nil, err
		}
		user.Birthday = birthday
	}
	if v, ok := values["email"]; ok {
		v = strings.TrimSpace(v)
		if err := validate.Email(v); err != nil {
			return nil, err
		}
		if !strings.EqualFold(v, user.Email) {
			other, err := s.FindByEmail(ctx, v)
			if err != nil {
				return nil, err
			}
			if other != nil && other.ID != user.ID {
				return nil, apperr.Conflict(MsgEmailTaken)
			}
		}
		user.Email = v
	}
	if v, ok := values["role"]; ok {
		role, err := validate.Role(v)
		if err != nil {
			return nil, err
		}
		user.Role = role
	}
	if v, ok := values["phoneNumber"]; ok {
		v = strings.TrimSpace(v)
		if err := validate.PhoneNumber(v); err != nil {
			return nil, err
		}
		user.PhoneNumber = v
	}
	if v, ok := values["password"]; ok {
		if err := validate.Password(v); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(v)
		if err != nil {
			return nil, apperr.Internal("Failed to process password", err)
		}
		user.PasswordHash = hash
	}

	updated, err := s.repo.UpdateUser(ctx, user)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, apperr.NotFound("No user found with id: " + id)
	case errors.Is(err, storage.ErrAlreadyExists):
		return nil, apperr.Conflict(MsgEmailTaken)
	case err != nil:
		return nil, err
	}
	return updated, nil
}

// Delete は利用者を削除します。存在しない場合は NotFound エラーです。
// 削除後の通知に失敗しても削除自体は成功として扱います（残ったセッションは解決時に破棄されます）。
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	deleted, err := s.repo.DeleteUser(ctx, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, apperr.NotFound("No user found with id: " + id)
	}
	if s.listener != nil {
		if err := s.listener.UserDeleted(ctx, id); err != nil {
			slog.WarnContext(ctx, "failed to notify user deletion", "user_id", id, "error", err)
		}
	}
	return true, nil
}

// ValidateID は ID が UUID 形式かを検証します。
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation(MsgInvalidID)
	}
	return nil
}

func checkAllowed(fields map[string]any) error {
	if len(fields) == 0 {
		return apperr.Validation("Error with the request body. Please include at least one field: " + strings.Join(allowedUpdates, ", "))
	}
	for key := range fields {
		if !isAllowed(key) {
			return apperr.Validation("Error with the request body. Please include only valid fields: " + strings.Join(allowedUpdates, ", "))
		}
	}
	return nil
}

func isAllowed(key string) bool {
	for _, a := range allowedUpdates {
		if a == key {
			return true
		}
	}
	return false
}

func stringValues(fields map[string]any) (map[string]string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(fields))
	for _, k := range keys {
		s, ok := fields[k].(string)
		if !ok {
			return nil, apperr.Validationf("%s must be a string", k)
		}
		out[k] = s
	}
	return out, nil
}
