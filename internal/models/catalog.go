package models

import "time"

// Book は蔵書です。
type Book struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Author    string    `json:"author"`
	Genre     string    `json:"genre"`
	Summary   string    `json:"summary,omitempty"`
	Published int       `json:"published,omitempty"`
	ISBN      string    `json:"isbn,omitempty"`
	Pages     int       `json:"pages,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Author は著者です。
type Author struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Birthdate   time.Time `json:"birthdate"`
	Nationality string    `json:"nationality,omitempty"`
	Awards      []string  `json:"awards"`
	Books       []string  `json:"books"`
	Genres      []string  `json:"genres"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// LoanStatus は貸出の状態です。
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
	LoanOverdue  LoanStatus = "overdue"
)

// Valid は定義済みの状態かどうかを返します。
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanReturned, LoanOverdue:
		return true
	default:
		return false
	}
}

// Loan は貸出記録です。
type Loan struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	BookID     string     `json:"bookId"`
	LoanDate   time.Time  `json:"loanDate"`
	DueDate    time.Time  `json:"dueDate"`
	ReturnDate *time.Time `json:"returnDate,omitempty"`
	Status     LoanStatus `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
