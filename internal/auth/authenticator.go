package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yourusername/bookflow/internal/apperr"
	"github.com/yourusername/bookflow/internal/models"
	"github.com/yourusername/bookflow/internal/session"
	"github.com/yourusername/bookflow/internal/users"
	"github.com/yourusername/bookflow/internal/validate"
)

const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgLogoutFailed       = "Failed to log out, please try again"
	MsgSessionFailed      = "Failed to create session, please try again"

	// 存在しないメールアドレスでも照合コストを揃えるためのダミー
	timingDummyPassword = "TimingDummy0"
)

// CredentialStore は認証に必要な利用者操作です。users.Service が満たします。
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, in users.CreateInput) (*models.User, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Authenticator は登録・ログイン・ログアウトを担います。
type Authenticator struct {
	users     CredentialStore
	sessions  session.Store
	hasher    users.PasswordHasher
	dummyHash string
}

// NewAuthenticator は Authenticator を作成します。
func NewAuthenticator(creds CredentialStore, sessions session.Store, hasher users.PasswordHasher) (*Authenticator, error) {
	dummy, err := hasher.Hash(timingDummyPassword)
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		users:     creds,
		sessions:  sessions,
		hasher:    hasher,
		dummyHash: dummy,
	}, nil
}

// Register は利用者を作成し、続けてセッションを発行します。
// セッション発行に失敗した場合は作成した利用者を削除し、InternalError を返します。
func (a *Authenticator) Register(ctx context.Context, in users.CreateInput) (models.PublicUser, string, error) {
	user, err := a.users.Create(ctx, in)
	if err != nil {
		return models.PublicUser{}, "", err
	}

	key, err := a.sessions.Create(ctx, user.ID)
	if err != nil {
		a.AbortRegistration(ctx, user.ID, "")
		return models.PublicUser{}, "", apperr.Internal(MsgSessionFailed, err)
	}
	return user.Public(), key, nil
}

// AbortRegistration は登録途中で失敗した場合に、発行済みのセッションと利用者を取り消します。
func (a *Authenticator) AbortRegistration(ctx context.Context, userID, key string) {
	// 呼び出し元がキャンセルされていても取り消しは実行する
	ctx = context.WithoutCancel(ctx)
	if key != "" {
		if err := a.sessions.Destroy(ctx, key); err != nil {
			slog.ErrorContext(ctx, "failed to destroy session of aborted registration", "user_id", userID, "error", err)
		}
	}
	if _, err := a.users.Delete(ctx, userID); err != nil {
		slog.ErrorContext(ctx, "failed to roll back registration", "user_id", userID, "error", err)
	}
}

// Login はメールアドレスとパスワードを照合し、セッションを発行します。
// 未登録のメールアドレスとパスワード不一致は同じ AuthError になります。
func (a *Authenticator) Login(ctx context.Context, email, password string) (models.PublicUser, string, error) {
	email = strings.TrimSpace(email)
	if err := validate.Required(email, password); err != nil {
		return models.PublicUser{}, "", apperr.Auth(MsgInvalidCredentials)
	}

	user, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		return models.PublicUser{}, "", err
	}
	if user == nil {
		a.hasher.Verify(password, a.dummyHash)
		return models.PublicUser{}, "", apperr.Auth(MsgInvalidCredentials)
	}
	if !a.hasher.Verify(password, user.PasswordHash) {
		return models.PublicUser{}, "", apperr.Auth(MsgInvalidCredentials)
	}

	key, err := a.sessions.Create(ctx, user.ID)
	if err != nil {
		return models.PublicUser{}, "", apperr.Internal(MsgSessionFailed, err)
	}
	return user.Public(), key, nil
}

// Logout はセッションを破棄します。キーが空または既に存在しない場合も成功です。
func (a *Authenticator) Logout(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := a.sessions.Destroy(ctx, key); err != nil {
		return apperr.Internal(MsgLogoutFailed, err)
	}
	return nil
}
