package catalog

import (
	"context"
	"errors"

	"github.com/yourusername/bookflow/internal/apperr"
	"github.com/yourusername/bookflow/internal/models"
	"github.com/yourusername/bookflow/internal/storage"
)

const (
	MsgInvalidBookID = "Invalid book ID!"
	MsgBookRequired  = "Please include the book's name, author and genre."
	MsgISBNTaken     = "A book with this ISBN already exists"
)

var bookFields = []string{"name", "author", "genre", "summary", "published", "isbn", "pages"}

// BookInput は蔵書の作成・更新リクエストです。nil の項目は変更しません。
type BookInput struct {
	Name      *string `json:"name"`
	Author    *string `json:"author"`
	Genre     *string `json:"genre"`
	Summary   *string `json:"summary"`
	Published *int    `json:"published"`
	ISBN      *string `json:"isbn"`
	Pages     *int    `json:"pages"`
}

// Books は蔵書の業務ロジックです。
type Books struct {
	repo storage.BookRepository
}

// NewBooks は Books を作成します。
func NewBooks(repo storage.BookRepository) *Books {
	return &Books{repo: repo}
}

func (s *Books) List(ctx context.Context) ([]*models.Book, error) {
	return s.repo.ListBooks(ctx)
}

func (s *Books) Get(ctx context.Context, id string) (*models.Book, error) {
	if err := parseID(id, MsgInvalidBookID); err != nil {
		return nil, err
	}
	book, err := s.repo.FindBookByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "No book found with id: "+id)
	}
	return book, nil
}

func (s *Books) Create(ctx context.Context, in BookInput) (*models.Book, error) {
	book := &models.Book{}
	if err := applyBook(book, in); err != nil {
		return nil, err
	}
	created, err := s.repo.CreateBook(ctx, book)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil, apperr.Conflict(MsgISBNTaken)
	}
	return created, err
}

// Update は fields に含まれる項目だけを更新します。
func (s *Books) Update(ctx context.Context, id string, fields map[string]any) (*models.Book, error) {
	if err := parseID(id, MsgInvalidBookID); err != nil {
		return nil, err
	}
	var in BookInput
	if err := decodePatch(fields, bookFields, &in); err != nil {
		return nil, err
	}

	book, err := s.repo.FindBookByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "No book found with id: "+id)
	}
	if err := applyBook(book, in); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateBook(ctx, book)
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		return nil, apperr.Conflict(MsgISBNTaken)
	case err != nil:
		return nil, notFound(err, "No book found with id: "+id)
	}
	return updated, nil
}

func (s *Books) Delete(ctx context.Context, id string) error {
	if err := parseID(id, MsgInvalidBookID); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteBook(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("No book found with id: " + id)
	}
	return nil
}

func applyBook(book *models.Book, in BookInput) error {
	if in.Name != nil {
		book.Name = trimmed(in.Name)
	}
	if in.Author != nil {
		book.Author = trimmed(in.Author)
	}
	if in.Genre != nil {
		book.Genre = trimmed(in.Genre)
	}
	if in.Summary != nil {
		book.Summary = trimmed(in.Summary)
	}
	if in.ISBN != nil {
		book.ISBN = trimmed(in.ISBN)
	}
	if in.Published != nil {
		if *in.Published < 0 {
			return apperr.Validation("published must be zero or greater")
		}
		book.Published = *in.Published
	}
	if in.Pages != nil {
		if *in.Pages < 1 {
			return apperr.Validation("pages must be at least 1")
		}
		book.Pages = *in.Pages
	}

	if book.Name == "" || book.Author == "" || book.Genre == "" {
		return apperr.Validation(MsgBookRequired)
	}
	return nil
}
