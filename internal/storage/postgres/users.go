package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/bookflow/internal/models"
)

const userColumns = `id, first_name, last_name, birthday, email, password_hash, role, phone_number, created_at, updated_at`

// CreateUser は利用者を追加します。
func (s *Store) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	id := user.ID
	if id == "" {
		id = uuid.NewString()
	}
	query := `
		INSERT INTO users (id, first_name, last_name, birthday, email, password_hash, role, phone_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns
	row := s.pool.QueryRow(ctx, query,
		id, user.FirstName, user.LastName, user.Birthday, user.Email,
		user.PasswordHash, string(user.Role), user.PhoneNumber,
	)
	created, err := scanUser(row)
	if err != nil {
		return nil, translateError(err)
	}
	return created, nil
}

// FindUserByID は ID で利用者を取得します。
func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

// FindUserByEmail はメールアドレスで利用者を取得します（大文字小文字を区別しません）。
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

// ListUsers は全利用者を作成日時順に返します。
func (s *Store) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUser は更新可能な列を書き換え、更新後のレコードを返します。
func (s *Store) UpdateUser(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, birthday = $4, email = $5,
		    password_hash = $6, role = $7, phone_number = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	row := s.pool.QueryRow(ctx, query,
		user.ID, user.FirstName, user.LastName, user.Birthday, user.Email,
		user.PasswordHash, string(user.Role), user.PhoneNumber,
	)
	updated, err := scanUser(row)
	if err != nil {
		return nil, translateError(err)
	}
	return updated, nil
}

// DeleteUser は利用者を削除し、存在したかどうかを返します。
func (s *Store) DeleteUser(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "users", id)
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	var role string
	if err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Birthday, &user.Email,
		&user.PasswordHash, &role, &user.PhoneNumber, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	return &user, nil
}
