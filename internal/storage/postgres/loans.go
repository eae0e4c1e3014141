package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/bookflow/internal/models"
	"github.com/yourusername/bookflow/internal/storage"
)

const loanColumns = `id, user_id, book_id, loan_date, due_date, return_date, status, created_at, updated_at`

func (s *Store) CreateLoan(ctx context.Context, loan *models.Loan) (*models.Loan, error) {
	id := loan.ID
	if id == "" {
		id = uuid.NewString()
	}
	query := `
		INSERT INTO loans (id, user_id, book_id, loan_date, due_date, return_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + loanColumns
	row := s.pool.QueryRow(ctx, query,
		id, loan.UserID, loan.BookID, loan.LoanDate, loan.DueDate, loan.ReturnDate, string(loan.Status),
	)
	created, err := scanLoan(row)
	if err != nil {
		return nil, translateError(err)
	}
	return created, nil
}

func (s *Store) FindLoanByID(ctx context.Context, id string) (*models.Loan, error) {
	loan, err := scanLoan(s.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
	if err != nil {
		return nil, translateError(err)
	}
	return loan, nil
}

func (s *Store) ListLoans(ctx context.Context, filter storage.LoanFilter) ([]*models.Loan, error) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + loanColumns + ` FROM loans`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

func (s *Store) UpdateLoan(ctx context.Context, loan *models.Loan) (*models.Loan, error) {
	query := `
		UPDATE loans
		SET user_id = $2, book_id = $3, loan_date = $4, due_date = $5,
		    return_date = $6, status = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + loanColumns
	row := s.pool.QueryRow(ctx, query,
		loan.ID, loan.UserID, loan.BookID, loan.LoanDate, loan.DueDate, loan.ReturnDate, string(loan.Status),
	)
	updated, err := scanLoan(row)
	if err != nil {
		return nil, translateError(err)
	}
	return updated, nil
}

func (s *Store) DeleteLoan(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "loans", id)
}

func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE loans SET status = 'overdue', updated_at = NOW()
		 WHERE status = 'active' AND due_date < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("mark overdue loans: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanLoan(row pgx.Row) (*models.Loan, error) {
	var (
		l      models.Loan
		status string
	)
	if err := row.Scan(
		&l.ID, &l.UserID, &l.BookID, &l.LoanDate, &l.DueDate, &l.ReturnDate, &status,
		&l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	l.Status = models.LoanStatus(status)
	return &l, nil
}
