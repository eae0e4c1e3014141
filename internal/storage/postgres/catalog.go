package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/bookflow/internal/models"
)

const bookColumns = `id, name, author, genre, summary, published, COALESCE(isbn, ''), pages, created_at, updated_at`

func (s *Store) CreateBook(ctx context.Context, book *models.Book) (*models.Book, error) {
	id := book.ID
	if id == "" {
		id = uuid.NewString()
	}
	query := `
		INSERT INTO books (id, name, author, genre, summary, published, isbn, pages)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING ` + bookColumns
	row := s.pool.QueryRow(ctx, query,
		id, book.Name, book.Author, book.Genre, book.Summary, book.Published, book.ISBN, book.Pages,
	)
	created, err := scanBook(row)
	if err != nil {
		return nil, translateError(err)
	}
	return created, nil
}

func (s *Store) FindBookByID(ctx context.Context, id string) (*models.Book, error) {
	book, err := scanBook(s.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err != nil {
		return nil, translateError(err)
	}
	return book, nil
}

func (s *Store) ListBooks(ctx context.Context) ([]*models.Book, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+bookColumns+` FROM books ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []*models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func (s *Store) UpdateBook(ctx context.Context, book *models.Book) (*models.Book, error) {
	query := `
		UPDATE books
		SET name = $2, author = $3, genre = $4, summary = $5, published = $6,
		    isbn = NULLIF($7, ''), pages = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookColumns
	row := s.pool.QueryRow(ctx, query,
		book.ID, book.Name, book.Author, book.Genre, book.Summary, book.Published, book.ISBN, book.Pages,
	)
	updated, err := scanBook(row)
	if err != nil {
		return nil, translateError(err)
	}
	return updated, nil
}

func (s *Store) DeleteBook(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "books", id)
}

func scanBook(row pgx.Row) (*models.Book, error) {
	var b models.Book
	if err := row.Scan(
		&b.ID, &b.Name, &b.Author, &b.Genre, &b.Summary, &b.Published, &b.ISBN, &b.Pages,
		&b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

const authorColumns = `id, first_name, last_name, birthdate, nationality, awards, book_ids, genres, created_at, updated_at`

func (s *Store) CreateAuthor(ctx context.Context, author *models.Author) (*models.Author, error) {
	id := author.ID
	if id == "" {
		id = uuid.NewString()
	}
	query := `
		INSERT INTO authors (id, first_name, last_name, birthdate, nationality, awards, book_ids, genres)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + authorColumns
	row := s.pool.QueryRow(ctx, query,
		id, author.FirstName, author.LastName, author.Birthdate, author.Nationality,
		nonNil(author.Awards), nonNil(author.Books), nonNil(author.Genres),
	)
	created, err := scanAuthor(row)
	if err != nil {
		return nil, translateError(err)
	}
	return created, nil
}

func (s *Store) FindAuthorByID(ctx context.Context, id string) (*models.Author, error) {
	author, err := scanAuthor(s.pool.QueryRow(ctx, `SELECT `+authorColumns+` FROM authors WHERE id = $1`, id))
	if err != nil {
		return nil, translateError(err)
	}
	return author, nil
}

func (s *Store) ListAuthors(ctx context.Context) ([]*models.Author, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+authorColumns+` FROM authors ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()

	var authors []*models.Author
	for rows.Next() {
		author, err := scanAuthor(rows)
		if err != nil {
			return nil, err
		}
		authors = append(authors, author)
	}
	return authors, rows.Err()
}

func (s *Store) UpdateAuthor(ctx context.Context, author *models.Author) (*models.Author, error) {
	query := `
		UPDATE authors
		SET first_name = $2, last_name = $3, birthdate = $4, nationality = $5,
		    awards = $6, book_ids = $7, genres = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + authorColumns
	row := s.pool.QueryRow(ctx, query,
		author.ID, author.FirstName, author.LastName, author.Birthdate, author.Nationality,
		nonNil(author.Awards), nonNil(author.Books), nonNil(author.Genres),
	)
	updated, err := scanAuthor(row)
	if err != nil {
		return nil, translateError(err)
	}
	return updated, nil
}

func (s *Store) DeleteAuthor(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "authors", id)
}

func scanAuthor(row pgx.Row) (*models.Author, error) {
	var a models.Author
	if err := row.Scan(
		&a.ID, &a.FirstName, &a.LastName, &a.Birthdate, &a.Nationality,
		&a.Awards, &a.Books, &a.Genres, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
