// Package memory はプロセス内で完結する storage.Store 実装です。
// 開発環境とテストで使用し、再起動でデータは失われます。
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/bookflow/internal/models"
	"github.com/yourusername/bookflow/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store はマップでレコードを保持します。返却値は常にコピーです。
type Store struct {
	mu      sync.RWMutex
	users   map[string]models.User
	books   map[string]models.Book
	authors map[string]models.Author
	loans   map[string]models.Loan
	now     func() time.Time
}

// New は空の Store を作成します。
func New() *Store {
	return &Store{
		users:   make(map[string]models.User),
		books:   make(map[string]models.Book),
		authors: make(map[string]models.Author),
		loans:   make(map[string]models.Loan),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ping は常に成功します。
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close は何もしません。
func (s *Store) Close() {}

func (s *Store) stamp(id *string, createdAt, updatedAt *time.Time) {
	now := s.now()
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}

// CreateUser は利用者を追加します。メールアドレスは大文字小文字を区別せず一意です。
func (s *Store) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTakenLocked(user.Email, "") {
		return nil, storage.ErrAlreadyExists
	}
	rec := *user
	s.stamp(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if _, exists := s.users[rec.ID]; exists {
		return nil, storage.ErrAlreadyExists
	}
	s.users[rec.ID] = rec
	out := rec
	return &out, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if strings.EqualFold(rec.Email, email) {
			out := rec
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0, len(s.users))
	for _, rec := range s.users {
		rec := rec
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateUser(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if s.emailTakenLocked(user.Email, user.ID) {
		return nil, storage.ErrAlreadyExists
	}
	rec := *user
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = s.now()
	s.users[rec.ID] = rec
	out := rec
	return &out, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	return true, nil
}

func (s *Store) emailTakenLocked(email, exceptID string) bool {
	for id, rec := range s.users {
		if id != exceptID && strings.EqualFold(rec.Email, email) {
			return true
		}
	}
	return false
}

// CreateBook は蔵書を追加します。ISBN は空でなければ一意です。
func (s *Store) CreateBook(ctx context.Context, book *models.Book) (*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isbnTakenLocked(book.ISBN, "") {
		return nil, storage.ErrAlreadyExists
	}
	rec := *book
	s.stamp(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	s.books[rec.ID] = rec
	out := rec
	return &out, nil
}

func (s *Store) FindBookByID(ctx context.Context, id string) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.books[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) ListBooks(ctx context.Context) ([]*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Book, 0, len(s.books))
	for _, rec := range s.books {
		rec := rec
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateBook(ctx context.Context, book *models.Book) (*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.books[book.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if s.isbnTakenLocked(book.ISBN, book.ID) {
		return nil, storage.ErrAlreadyExists
	}
	rec := *book
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = s.now()
	s.books[rec.ID] = rec
	out := rec
	return &out, nil
}

func (s *Store) DeleteBook(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return false, nil
	}
	delete(s.books, id)
	return true, nil
}

func (s *Store) isbnTakenLocked(isbn, exceptID string) bool {
	if isbn == "" {
		return false
	}
	for id, rec := range s.books {
		if id != exceptID && rec.ISBN == isbn {
			return true
		}
	}
	return false
}

func cloneAuthor(a models.Author) models.Author {
	a.Awards = append([]string{}, a.Awards...)
	a.Books = append([]string{}, a.Books...)
	a.Genres = append([]string{}, a.Genres...)
	return a
}

func (s *Store) CreateAuthor(ctx context.Context, author *models.Author) (*models.Author, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := cloneAuthor(*author)
	s.stamp(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	s.authors[rec.ID] = rec
	out := cloneAuthor(rec)
	return &out, nil
}

func (s *Store) FindAuthorByID(ctx context.Context, id string) (*models.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.authors[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := cloneAuthor(rec)
	return &out, nil
}

func (s *Store) ListAuthors(ctx context.Context) ([]*models.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Author, 0, len(s.authors))
	for _, rec := range s.authors {
		c := cloneAuthor(rec)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateAuthor(ctx context.Context, author *models.Author) (*models.Author, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.authors[author.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rec := cloneAuthor(*author)
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = s.now()
	s.authors[rec.ID] = rec
	out := cloneAuthor(rec)
	return &out, nil
}

func (s *Store) DeleteAuthor(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authors[id]; !ok {
		return false, nil
	}
	delete(s.authors, id)
	return true, nil
}

func cloneLoan(l models.Loan) models.Loan {
	if l.ReturnDate != nil {
		rd := *l.ReturnDate
		l.ReturnDate = &rd
	}
	return l
}

func (s *Store) CreateLoan(ctx context.Context, loan *models.Loan) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := cloneLoan(*loan)
	s.stamp(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	s.loans[rec.ID] = rec
	out := cloneLoan(rec)
	return &out, nil
}

func (s *Store) FindLoanByID(ctx context.Context, id string) (*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.loans[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := cloneLoan(rec)
	return &out, nil
}

func (s *Store) ListLoans(ctx context.Context, filter storage.LoanFilter) ([]*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Loan, 0, len(s.loans))
	for _, rec := range s.loans {
		if filter.UserID != "" && rec.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		c := cloneLoan(rec)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateLoan(ctx context.Context, loan *models.Loan) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.loans[loan.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rec := cloneLoan(*loan)
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = s.now()
	s.loans[rec.ID] = rec
	out := cloneLoan(rec)
	return &out, nil
}

func (s *Store) DeleteLoan(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loans[id]; !ok {
		return false, nil
	}
	delete(s.loans, id)
	return true, nil
}

func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, rec := range s.loans {
		if rec.Status == models.LoanActive && rec.DueDate.Before(now) {
			rec.Status = models.LoanOverdue
			rec.UpdatedAt = s.now()
			s.loans[id] = rec
			count++
		}
	}
	return count, nil
}
