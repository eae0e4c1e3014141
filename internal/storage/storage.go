// Package storage はレコード永続化の抽象化レイヤーを提供します。
//
// 実装:
//   - storage/postgres: pgx を使った PostgreSQL 実装（本番用）
//   - storage/memory:   プロセス内マップ実装（開発・テスト用）
//
// Find 系は該当なしの場合 ErrNotFound を返し、Delete 系は削除したかどうかを bool で返します。
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/bookflow/internal/models"
)

// ErrNotFound はレコードが存在しないことを示します。
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists は一意制約違反を示します。
var ErrAlreadyExists = errors.New("record already exists")

// UserRepository は利用者レコードの永続化操作です。
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) (*models.User, error)
	DeleteUser(ctx context.Context, id string) (bool, error)
}

// BookRepository は蔵書レコードの永続化操作です。
type BookRepository interface {
	CreateBook(ctx context.Context, book *models.Book) (*models.Book, error)
	FindBookByID(ctx context.Context, id string) (*models.Book, error)
	ListBooks(ctx context.Context) ([]*models.Book, error)
	UpdateBook(ctx context.Context, book *models.Book) (*models.Book, error)
	DeleteBook(ctx context.Context, id string) (bool, error)
}

// AuthorRepository は著者レコードの永続化操作です。
type AuthorRepository interface {
	CreateAuthor(ctx context.Context, author *models.Author) (*models.Author, error)
	FindAuthorByID(ctx context.Context, id string) (*models.Author, error)
	ListAuthors(ctx context.Context) ([]*models.Author, error)
	UpdateAuthor(ctx context.Context, author *models.Author) (*models.Author, error)
	DeleteAuthor(ctx context.Context, id string) (bool, error)
}

// LoanFilter は貸出一覧の絞り込み条件です。空の項目は条件に含めません。
type LoanFilter struct {
	UserID string
	Status models.LoanStatus
}

// LoanRepository は貸出レコードの永続化操作です。
type LoanRepository interface {
	CreateLoan(ctx context.Context, loan *models.Loan) (*models.Loan, error)
	FindLoanByID(ctx context.Context, id string) (*models.Loan, error)
	ListLoans(ctx context.Context, filter LoanFilter) ([]*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) (*models.Loan, error)
	DeleteLoan(ctx context.Context, id string) (bool, error)
	// MarkOverdue は due_date < now の active な貸出を overdue にし、更新件数を返します。
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
}

// Store はすべてのリポジトリをまとめたものです。
type Store interface {
	UserRepository
	BookRepository
	AuthorRepository
	LoanRepository
	Ping(ctx context.Context) error
	Close()
}
