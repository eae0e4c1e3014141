package catalog

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookflow/internal/apperr"
	"github.com/yourusername/bookflow/internal/auth"
	"github.com/yourusername/bookflow/internal/models"
	"github.com/yourusername/bookflow/internal/storage"
	"github.com/yourusername/bookflow/internal/users"
)

// Guard は認証・認可ミドルウェアを提供します。*auth.Manager が実装します。
type Guard interface {
	RequireLogin() gin.HandlerFunc
	VerifyCSRF() gin.HandlerFunc
	RequireRole(roles ...models.Role) gin.HandlerFunc
}

// Handler はカタログと利用者管理の HTTP ハンドラーです。
type Handler struct {
	books   *Books
	authors *Authors
	loans   *Loans
	users   *users.Service
}

// NewHandler は Handler を作成します。
func NewHandler(books *Books, authors *Authors, loans *Loans, userService *users.Service) *Handler {
	return &Handler{books: books, authors: authors, loans: loans, users: userService}
}

// RegisterRoutes は /books, /authors, /loans, /users を api 以下に登録します。
// 参照はログイン済みなら誰でも可能で、変更系は admin に限ります（貸出の作成は本人も可）。
func (h *Handler) RegisterRoutes(api *gin.RouterGroup, guard Guard) {
	adminOnly := guard.RequireRole(models.RoleAdmin)

	protected := api.Group("")
	protected.Use(guard.RequireLogin(), guard.VerifyCSRF())

	books := protected.Group("/books")
	{
		books.GET("", h.ListBooks)
		books.GET("/:book_id", h.GetBook)
		books.POST("", adminOnly, h.CreateBook)
		books.PUT("/:book_id", adminOnly, h.UpdateBook)
		books.DELETE("/:book_id", adminOnly, h.DeleteBook)
	}

	authors := protected.Group("/authors")
	{
		authors.GET("", h.ListAuthors)
		authors.GET("/:author_id", h.GetAuthor)
		authors.POST("", adminOnly, h.CreateAuthor)
		authors.PUT("/:author_id", adminOnly, h.UpdateAuthor)
		authors.DELETE("/:author_id", adminOnly, h.DeleteAuthor)
	}

	loans := protected.Group("/loans")
	{
		loans.GET("", h.ListLoans)
		loans.GET("/:loan_id", h.GetLoan)
		loans.POST("", h.CreateLoan)
		loans.PUT("/:loan_id", adminOnly, h.UpdateLoan)
		loans.DELETE("/:loan_id", adminOnly, h.DeleteLoan)
	}

	admin := protected.Group("/users", adminOnly)
	{
		admin.GET("", h.ListUsers)
		admin.GET("/:user_id", h.GetUser)
		admin.POST("", h.CreateUser)
		admin.PUT("/:user_id", h.UpdateUser)
		admin.DELETE("/:user_id", h.DeleteUser)
	}
}

// --- books ---

func (h *Handler) ListBooks(c *gin.Context) {
	books, err := h.books.List(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *Handler) GetBook(c *gin.Context) {
	book, err := h.books.Get(c.Request.Context(), c.Param("book_id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) CreateBook(c *gin.Context) {
	var in BookInput
	if !bindJSON(c, &in) {
		return
	}
	book, err := h.books.Create(c.Request.Context(), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *Handler) UpdateBook(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	book, err := h.books.Update(c.Request.Context(), c.Param("book_id"), fields)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) DeleteBook(c *gin.Context) {
	if err := h.books.Delete(c.Request.Context(), c.Param("book_id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Book deleted successfully"})
}

// --- authors ---

func (h *Handler) ListAuthors(c *gin.Context) {
	authors, err := h.authors.List(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, authors)
}

func (h *Handler) GetAuthor(c *gin.Context) {
	author, err := h.authors.Get(c.Request.Context(), c.Param("author_id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, author)
}

func (h *Handler) CreateAuthor(c *gin.Context) {
	var in AuthorInput
	if !bindJSON(c, &in) {
		return
	}
	author, err := h.authors.Create(c.Request.Context(), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, author)
}

func (h *Handler) UpdateAuthor(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	author, err := h.authors.Update(c.Request.Context(), c.Param("author_id"), fields)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, author)
}

func (h *Handler) DeleteAuthor(c *gin.Context) {
	if err := h.authors.Delete(c.Request.Context(), c.Param("author_id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Author deleted successfully"})
}

// --- loans ---

func (h *Handler) ListLoans(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	filter := storage.LoanFilter{
		UserID: strings.TrimSpace(c.Query("userId")),
		Status: models.LoanStatus(strings.TrimSpace(c.Query("status"))),
	}
	loans, err := h.loans.List(c.Request.Context(), caller, filter)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (h *Handler) GetLoan(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	loan, err := h.loans.Get(c.Request.Context(), caller, c.Param("loan_id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *Handler) CreateLoan(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	var in LoanInput
	if !bindJSON(c, &in) {
		return
	}
	loan, err := h.loans.Create(c.Request.Context(), caller, in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

func (h *Handler) UpdateLoan(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	loan, err := h.loans.Update(c.Request.Context(), c.Param("loan_id"), fields)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *Handler) DeleteLoan(c *gin.Context) {
	if err := h.loans.Delete(c.Request.Context(), c.Param("loan_id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Loan deleted successfully"})
}

// --- users (admin) ---

func (h *Handler) ListUsers(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	out := make([]models.PublicUser, 0, len(list))
	for _, u := range list {
		out = append(out, u.Public())
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Detail())
}

func (h *Handler) CreateUser(c *gin.Context) {
	var in users.CreateInput
	if !bindJSON(c, &in) {
		return
	}
	// 管理者が作成する利用者はロール省略時 user
	if strings.TrimSpace(in.Role) == "" {
		in.Role = models.RoleUser.String()
	}
	user, err := h.users.Create(c.Request.Context(), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, user.Detail())
}

func (h *Handler) UpdateUser(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	user, err := h.users.Update(c.Request.Context(), c.Param("user_id"), fields)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Detail())
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if _, err := h.users.Delete(c.Request.Context(), c.Param("user_id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		apperr.Respond(c, apperr.Validation("Request body must be a JSON object with valid field types"))
		return false
	}
	return true
}

func bindFields(c *gin.Context) (map[string]any, bool) {
	var fields map[string]any
	if !bindJSON(c, &fields) {
		return nil, false
	}
	return fields, true
}

func currentCaller(c *gin.Context) (models.PublicUser, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		apperr.Respond(c, apperr.Internal("Missing authenticated user", errNoCaller))
		return models.PublicUser{}, false
	}
	return user, true
}
