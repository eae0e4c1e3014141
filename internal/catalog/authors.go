package catalog

import (
	"context"
	"time"

	"github.com/yourusername/bookflow/internal/apperr"
	"github.com/yourusername/bookflow/internal/models"
	"github.com/yourusername/bookflow/internal/storage"
	"github.com/yourusername/bookflow/internal/validate"
)

const (
	MsgInvalidAuthorID = "Invalid author ID!"
	MsgAuthorRequired  = "Please include the author's first and last name."
)

var authorFields = []string{"firstName", "lastName", "birthdate", "nationality", "awards", "books", "genres"}

// AuthorInput は著者の作成・更新リクエストです。
type AuthorInput struct {
	FirstName   *string   `json:"firstName"`
	LastName    *string   `json:"lastName"`
	Birthdate   *string   `json:"birthdate"`
	Nationality *string   `json:"nationality"`
	Awards      *[]string `json:"awards"`
	Books       *[]string `json:"books"`
	Genres      *[]string `json:"genres"`
}

// Authors は著者の業務ロジックです。
type Authors struct {
	repo storage.AuthorRepository
	now  func() time.Time
}

// NewAuthors は Authors を作成します。
func NewAuthors(repo storage.AuthorRepository) *Authors {
	return &Authors{repo: repo, now: time.Now}
}

func (s *Authors) List(ctx context.Context) ([]*models.Author, error) {
	return s.repo.ListAuthors(ctx)
}

func (s *Authors) Get(ctx context.Context, id string) (*models.Author, error) {
	if err := parseID(id, MsgInvalidAuthorID); err != nil {
		return nil, err
	}
	author, err := s.repo.FindAuthorByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "No author found with id: "+id)
	}
	return author, nil
}

func (s *Authors) Create(ctx context.Context, in AuthorInput) (*models.Author, error) {
	author := &models.Author{}
	if err := s.apply(author, in); err != nil {
		return nil, err
	}
	if author.Birthdate.IsZero() {
		return nil, apperr.Validation("birthdate is required")
	}
	return s.repo.CreateAuthor(ctx, author)
}

func (s *Authors) Update(ctx context.Context, id string, fields map[string]any) (*models.Author, error) {
	if err := parseID(id, MsgInvalidAuthorID); err != nil {
		return nil, err
	}
	var in AuthorInput
	if err := decodePatch(fields, authorFields, &in); err != nil {
		return nil, err
	}

	author, err := s.repo.FindAuthorByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "No author found with id: "+id)
	}
	if err := s.apply(author, in); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateAuthor(ctx, author)
	if err != nil {
		return nil, notFound(err, "No author found with id: "+id)
	}
	return updated, nil
}

func (s *Authors) Delete(ctx context.Context, id string) error {
	if err := parseID(id, MsgInvalidAuthorID); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteAuthor(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("No author found with id: " + id)
	}
	return nil
}

func (s *Authors) apply(author *models.Author, in AuthorInput) error {
	if in.FirstName != nil {
		author.FirstName = trimmed(in.FirstName)
	}
	if in.LastName != nil {
		author.LastName = trimmed(in.LastName)
	}
	if author.FirstName == "" || author.LastName == "" {
		return apperr.Validation(MsgAuthorRequired)
	}
	if in.Birthdate != nil {
		birthdate, err := validate.Date("birthdate", *in.Birthdate)
		if err != nil {
			return err
		}
		if err := validate.PastDate(birthdate, s.now()); err != nil {
			return err
		}
		author.Birthdate = birthdate
	}
	if in.Nationality != nil {
		author.Nationality = trimmed(in.Nationality)
	}
	if in.Awards != nil {
		author.Awards = *in.Awards
	}
	if in.Books != nil {
		author.Books = *in.Books
	}
	if in.Genres != nil {
		author.Genres = *in.Genres
	}

	for _, list := range []*[]string{&author.Awards, &author.Books, &author.Genres} {
		if *list == nil {
			*list = []string{}
		}
	}
	return nil
}
