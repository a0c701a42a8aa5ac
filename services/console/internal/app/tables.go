package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"librarydesk/internal/util"
	"librarydesk/pkg/crud"
	"librarydesk/pkg/domain"
	"librarydesk/pkg/libraryclient"
	"librarydesk/pkg/session"
)

// Row action failure texts.
const (
	ApproveFailed = "Failed to approve borrow"
	RejectFailed  = "Failed to reject borrow"
	ReturnFailed  = "Failed to return book"
	ReturnConfirm = "Mark this book as returned?"
)

// inputError is a problem with what the operator typed; its text is shown as is.
type inputError string

func (e inputError) Error() string { return string(e) }

// IsInputError reports whether err was caused by what the user typed.
func IsInputError(err error) bool {
	var ie inputError
	return errors.As(err, &ie)
}

func userMessage(err error, fallback string) string {
	var ie inputError
	if errors.As(err, &ie) {
		return ie.Error()
	}
	return libraryclient.MessageOf(err, fallback)
}

func requireStaff(sess session.Session) error {
	if !sess.User.Role.Staff() {
		return ErrForbidden
	}
	return nil
}

func requireAdmin(sess session.Session) error {
	if !sess.User.Role.ManagesUsers() {
		return ErrAdminOnly
	}
	return nil
}

// BooksTable builds the book management screen. Category options come from the
// API; when they cannot be loaded the select is left empty.
func (a *App) BooksTable(ctx context.Context, sess session.Session) (*crud.Table[domain.Book], error) {
	if err := requireStaff(sess); err != nil {
		return nil, err
	}
	categories, err := a.client.ListCategories(ctx, sess)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("category_options_failed", slog.String("err", err.Error()))
	}
	options := make([]crud.Option[int64], 0, len(categories))
	for _, c := range categories {
		options = append(options, crud.Option[int64]{Label: c.Name, Value: c.ID})
	}

	return crud.New(crud.Config[domain.Book]{
		Title: "Manage Books",
		List: func(ctx context.Context) ([]domain.Book, error) {
			return a.client.ListBooks(ctx, sess)
		},
		Create: func(ctx context.Context, p crud.Payload) error {
			return a.client.CreateBook(ctx, sess, p)
		},
		Update: func(ctx context.Context, id int64, p crud.Payload) error {
			return a.client.UpdateBook(ctx, sess, id, p)
		},
		Delete: func(ctx context.Context, id int64) error {
			return a.client.DeleteBook(ctx, sess, id)
		},
		Columns: []crud.Column[domain.Book]{
			{Key: "coverImage", Label: "Cover", Kind: crud.CellImage, Render: func(b domain.Book) string { return a.CoverURL(b.CoverImage) }},
			{Key: "title", Label: "Title"},
			{Key: "author", Label: "Author"},
			{Key: "categoryName", Label: "Category"},
			{Key: "stock", Label: "Stock"},
			{Key: "available", Label: "Available"},
		},
		Fields: []crud.Field{
			crud.Text{Spec: crud.Spec{Name: "title", Label: "Title", Required: true}},
			crud.Text{Spec: crud.Spec{Name: "author", Label: "Author", Required: true}},
			crud.Text{Spec: crud.Spec{Name: "publisher", Label: "Publisher", Required: true}},
			crud.Text{Spec: crud.Spec{Name: "isbn", Label: "ISBN", Required: true}},
			crud.Number{Spec: crud.Spec{Name: "year", Label: "Year", Required: true}},
			crud.Number{Spec: crud.Spec{Name: "stock", Label: "Stock", Required: true}},
			crud.Select[int64]{Spec: crud.Spec{Name: "categoryId", Label: "Category", Required: true}, Options: options},
			crud.TextArea{Spec: crud.Spec{Name: "description", Label: "Description", Required: true}},
			crud.Text{Spec: crud.Spec{Name: "coverImage", Label: "Cover Image URL"}},
		},
		Message: userMessage,
	})
}

func (a *App) CategoriesTable(ctx context.Context, sess session.Session) (*crud.Table[domain.Category], error) {
	if err := requireStaff(sess); err != nil {
		return nil, err
	}
	return crud.New(crud.Config[domain.Category]{
		Title: "Manage Categories",
		List: func(ctx context.Context) ([]domain.Category, error) {
			return a.client.ListCategories(ctx, sess)
		},
		Create: func(ctx context.Context, p crud.Payload) error {
			return a.client.CreateCategory(ctx, sess, p)
		},
		Update: func(ctx context.Context, id int64, p crud.Payload) error {
			return a.client.UpdateCategory(ctx, sess, id, p)
		},
		Delete: func(ctx context.Context, id int64) error {
			return a.client.DeleteCategory(ctx, sess, id)
		},
		Columns: []crud.Column[domain.Category]{
			{Key: "name", Label: "Name"},
			{Key: "description", Label: "Description"},
			{Key: "bookCount", Label: "Books"},
		},
		Fields: []crud.Field{
			crud.Text{Spec: crud.Spec{Name: "name", Label: "Name", Required: true}},
			crud.TextArea{Spec: crud.Spec{Name: "description", Label: "Description", Required: true}},
		},
		Message: userMessage,
	})
}

// UsersTable builds the account screen, filtered by search when given. An empty
// password on edit keeps the current one.
func (a *App) UsersTable(ctx context.Context, sess session.Session, search string) (*crud.Table[domain.User], error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	roles := make([]crud.Option[domain.UserRole], 0, len(domain.Roles))
	for _, r := range domain.Roles {
		roles = append(roles, crud.Option[domain.UserRole]{Label: r.Label(), Value: r})
	}
	return crud.New(crud.Config[domain.User]{
		Title: "Manage Users",
		List: func(ctx context.Context) ([]domain.User, error) {
			return a.client.ListUsers(ctx, sess, search)
		},
		Create: func(ctx context.Context, p crud.Payload) error {
			return a.client.CreateUser(ctx, sess, p)
		},
		Update: func(ctx context.Context, id int64, p crud.Payload) error {
			return a.client.UpdateUser(ctx, sess, id, p)
		},
		Delete: func(ctx context.Context, id int64) error {
			return a.client.DeleteUser(ctx, sess, id)
		},
		Columns: []crud.Column[domain.User]{
			{Key: "name", Label: "Name"},
			{Key: "email", Label: "Email"},
			{Key: "role", Label: "Role", Kind: crud.CellBadge, Render: func(u domain.User) string { return u.Role.Label() }},
		},
		Fields: []crud.Field{
			crud.Text{Spec: crud.Spec{Name: "name", Label: "Name", Required: true}},
			crud.Email{Spec: crud.Spec{Name: "email", Label: "Email", Required: true}},
			crud.Password{Spec: crud.Spec{Name: "password", Label: "Password"}},
			crud.Select[domain.UserRole]{Spec: crud.Spec{Name: "role", Label: "Role", Required: true}, Options: roles},
		},
		Transform: func(p crud.Payload) crud.Payload {
			if pw, _ := p["password"].(string); pw == "" {
				delete(p, "password")
			}
			return p
		},
		Message: userMessage,
	})
}

// BorrowsTable is read-only apart from the status actions each row offers.
func (a *App) BorrowsTable(ctx context.Context, sess session.Session) (*crud.Table[domain.BorrowRecord], error) {
	if err := requireStaff(sess); err != nil {
		return nil, err
	}
	date := func(t domain.Timestamp) string { return t.Format("2006-01-02", "-") }
	return crud.New(crud.Config[domain.BorrowRecord]{
		Title: "Manage Borrows",
		List: func(ctx context.Context) ([]domain.BorrowRecord, error) {
			return a.client.ListBorrows(ctx, sess)
		},
		Columns: []crud.Column[domain.BorrowRecord]{
			{Key: "id", Label: "ID"},
			{Key: "userId", Label: "User ID"},
			{Key: "bookId", Label: "Book ID"},
			{Key: "borrowDate", Label: "Borrow Date", Render: func(b domain.BorrowRecord) string { return date(b.BorrowDate) }},
			{Key: "dueDate", Label: "Due Date", Render: func(b domain.BorrowRecord) string { return date(b.DueDate) }},
			{Key: "status", Label: "Status", Kind: crud.CellBadge, Render: func(b domain.BorrowRecord) string {
				return strings.ToUpper(string(b.Status))
			}},
		},
		Actions: func(row domain.BorrowRecord, reload crud.ReloadFunc) []crud.Action {
			switch row.Status {
			case domain.BorrowPending:
				return []crud.Action{
					{Name: "approve", Label: "Approve", FailureMessage: ApproveFailed, Run: func(ctx context.Context, _ string) error {
						if err := a.client.ApproveBorrow(ctx, sess, row.ID); err != nil {
							return err
						}
						_ = reload(ctx)
						return nil
					}},
					{Name: "reject", Label: "Reject", Input: "Reason", FailureMessage: RejectFailed, Run: func(ctx context.Context, reason string) error {
						reason = strings.TrimSpace(reason)
						if reason == "" {
							return inputError("A reason is required to reject a borrow")
						}
						if err := a.client.RejectBorrow(ctx, sess, row.ID, reason); err != nil {
							return err
						}
						_ = reload(ctx)
						return nil
					}},
				}
			case domain.BorrowBorrowed:
				return []crud.Action{
					{Name: "return", Label: "Return", Confirm: ReturnConfirm, FailureMessage: ReturnFailed, Run: func(ctx context.Context, _ string) error {
						if err := a.client.ReturnBorrow(ctx, sess, row.ID); err != nil {
							return err
						}
						_ = reload(ctx)
						return nil
					}},
				}
			}
			return nil
		},
		Message: userMessage,
	})
}

// ChangeUserPassword resets another account's password.
func (a *App) ChangeUserPassword(ctx context.Context, sess session.Session, id int64, password string) error {
	if err := requireAdmin(sess); err != nil {
		return err
	}
	if strings.TrimSpace(password) == "" {
		return inputError("Password is required")
	}
	return a.client.ChangeUserPassword(ctx, sess, id, password)
}

// Message is the text to show an operator for err.
func Message(err error, fallback string) string {
	return userMessage(err, fallback)
}
