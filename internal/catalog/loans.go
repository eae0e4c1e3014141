package catalog

import (
	"context"
	"errors"

	"github.com/yourusername/bookflow/internal/apperr"
	"github.com/yourusername/bookflow/internal/models"
	"github.com/yourusername/bookflow/internal/storage"
	"github.com/yourusername/bookflow/internal/validate"
)

const (
	MsgInvalidLoanID = "Invalid loan_id!"
	MsgLoanRequired  = "Please include a userId, bookId, loanDate, and dueDate!"
	MsgLoanOwnership = "Access denied: this loan belongs to another user"
	MsgLoanDueDate   = "dueDate must not be before loanDate"
	MsgLoanStatus    = "status must be one of: active, returned, overdue"
)

var loanFields = []string{"userId", "bookId", "loanDate", "dueDate", "returnDate", "status"}

// LoanInput は貸出の作成・更新リクエストです。
type LoanInput struct {
	UserID     *string `json:"userId"`
	BookID     *string `json:"bookId"`
	LoanDate   *string `json:"loanDate"`
	DueDate    *string `json:"dueDate"`
	ReturnDate *string `json:"returnDate"`
	Status     *string `json:"status"`
}

// Loans は貸出の業務ロジックです。一般利用者は自分の貸出だけを扱えます。
type Loans struct {
	loans storage.LoanRepository
	books storage.BookRepository
	users storage.UserRepository
}

// NewLoans は Loans を作成します。
func NewLoans(loans storage.LoanRepository, books storage.BookRepository, users storage.UserRepository) *Loans {
	return &Loans{loans: loans, books: books, users: users}
}

// List は貸出一覧を返します。管理者以外は filter.UserID が本人に固定されます。
func (s *Loans) List(ctx context.Context, caller models.PublicUser, filter storage.LoanFilter) ([]*models.Loan, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation(MsgLoanStatus)
	}
	if !isAdmin(caller) {
		filter.UserID = caller.ID
	}
	return s.loans.ListLoans(ctx, filter)
}

func (s *Loans) Get(ctx context.Context, caller models.PublicUser, id string) (*models.Loan, error) {
	if err := parseID(id, MsgInvalidLoanID); err != nil {
		return nil, err
	}
	loan, err := s.loans.FindLoanByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "No loan found with id: "+id)
	}
	if !isAdmin(caller) && loan.UserID != caller.ID {
		return nil, apperr.Forbidden(MsgLoanOwnership)
	}
	return loan, nil
}

// Create は貸出を登録します。userId 省略時は呼び出し元本人の貸出になります。
func (s *Loans) Create(ctx context.Context, caller models.PublicUser, in LoanInput) (*models.Loan, error) {
	if trimmed(in.UserID) == "" {
		in.UserID = &caller.ID
	}
	if err := validate.Required(trimmed(in.UserID), trimmed(in.BookID), trimmed(in.LoanDate), trimmed(in.DueDate)); err != nil {
		return nil, apperr.Validation(MsgLoanRequired)
	}
	if !isAdmin(caller) && trimmed(in.UserID) != caller.ID {
		return nil, apperr.Forbidden(MsgLoanOwnership)
	}

	loan := &models.Loan{Status: models.LoanActive}
	if err := applyLoan(loan, in); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, loan); err != nil {
		return nil, err
	}
	return s.loans.CreateLoan(ctx, loan)
}

// Update は管理者向けの部分更新です。
func (s *Loans) Update(ctx context.Context, id string, fields map[string]any) (*models.Loan, error) {
	if err := parseID(id, MsgInvalidLoanID); err != nil {
		return nil, err
	}
	var in LoanInput
	if err := decodePatch(fields, loanFields, &in); err != nil {
		return nil, err
	}

	loan, err := s.loans.FindLoanByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "No loan found with id: "+id)
	}
	before := *loan
	if err := applyLoan(loan, in); err != nil {
		return nil, err
	}
	if loan.UserID != before.UserID || loan.BookID != before.BookID {
		if err := s.checkReferences(ctx, loan); err != nil {
			return nil, err
		}
	}

	updated, err := s.loans.UpdateLoan(ctx, loan)
	if err != nil {
		return nil, notFound(err, "No loan found with id: "+id)
	}
	return updated, nil
}

func (s *Loans) Delete(ctx context.Context, id string) error {
	if err := parseID(id, MsgInvalidLoanID); err != nil {
		return err
	}
	deleted, err := s.loans.DeleteLoan(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("No loan found with id: " + id)
	}
	return nil
}

func (s *Loans) checkReferences(ctx context.Context, loan *models.Loan) error {
	if err := parseID(loan.UserID, "Invalid user ID!"); err != nil {
		return err
	}
	if err := parseID(loan.BookID, MsgInvalidBookID); err != nil {
		return err
	}
	if _, err := s.users.FindUserByID(ctx, loan.UserID); err != nil {
		return notFound(err, "No user found with id: "+loan.UserID)
	}
	if _, err := s.books.FindBookByID(ctx, loan.BookID); err != nil {
		return notFound(err, "No book found with id: "+loan.BookID)
	}
	return nil
}

func applyLoan(loan *models.Loan, in LoanInput) error {
	if in.UserID != nil {
		loan.UserID = trimmed(in.UserID)
	}
	if in.BookID != nil {
		loan.BookID = trimmed(in.BookID)
	}
	if in.LoanDate != nil {
		t, err := validate.Date("loanDate", *in.LoanDate)
		if err != nil {
			return err
		}
		loan.LoanDate = t
	}
	if in.DueDate != nil {
		t, err := validate.Date("dueDate", *in.DueDate)
		if err != nil {
			return err
		}
		loan.DueDate = t
	}
	if in.ReturnDate != nil {
		if raw := trimmed(in.ReturnDate); raw == "" {
			loan.ReturnDate = nil
		} else {
			t, err := validate.Date("returnDate", raw)
			if err != nil {
				return err
			}
			loan.ReturnDate = &t
			// 返却日があれば返却済み
			loan.Status = models.LoanReturned
		}
	}
	if in.Status != nil {
		status := models.LoanStatus(trimmed(in.Status))
		if !status.Valid() {
			return apperr.Validation(MsgLoanStatus)
		}
		loan.Status = status
	}

	if loan.DueDate.Before(loan.LoanDate) {
		return apperr.Validation(MsgLoanDueDate)
	}
	if loan.ReturnDate != nil && loan.ReturnDate.Before(loan.LoanDate) {
		return apperr.Validation("returnDate must not be before loanDate")
	}
	return nil
}

func isAdmin(user models.PublicUser) bool {
	return user.Role == models.RoleAdmin
}

var errNoCaller = errors.New("no authenticated user in context")
