package borrowstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"librarydesk/internal/util"
	"librarydesk/pkg/domain"
	"librarydesk/pkg/session"
)

var (
	ErrNotBorrowable        = errors.New("borrowstate: book already has an active borrow")
	ErrNothingToReturn      = errors.New("borrowstate: book is not on loan")
	ErrConfirmationRequired = errors.New("borrowstate: return must be confirmed")
)

// ReturnPrompt is asked before a member returns a book.
const ReturnPrompt = "Are you sure you want to return this book?"

// API is the subset of the library client the desk needs.
type API interface {
	ListSelfBorrows(ctx context.Context, sess session.Session) ([]domain.BorrowRecord, error)
	BorrowBook(ctx context.Context, sess session.Session, bookID int64) error
	ReturnBorrow(ctx context.Context, sess session.Session, borrowID int64) error
}

// Desk runs the member borrow and return flows. Every call reads the member's
// history fresh from the API; nothing is updated optimistically.
type Desk struct {
	api API
}

func NewDesk(api API) *Desk {
	return &Desk{api: api}
}

// State fetches the member's borrows and reconciles them for bookID.
func (d *Desk) State(ctx context.Context, sess session.Session, bookID int64) (Result, error) {
	records, err := d.api.ListSelfBorrows(ctx, sess)
	if err != nil {
		return Result{BookID: bookID}, fmt.Errorf("list own borrows: %w", err)
	}
	return Observe(ctx, records, bookID), nil
}

// Observe reconciles records and logs a warning when the history is ambiguous.
func Observe(ctx context.Context, records []domain.BorrowRecord, bookID int64) Result {
	res := Reconcile(records, bookID)
	if res.Ambiguous() {
		ids := make([]int64, 0, len(res.Duplicates))
		for _, dup := range res.Duplicates {
			ids = append(ids, dup.ID)
		}
		util.LoggerFromContext(ctx).Warn("borrow_state_ambiguous",
			slog.Int64("book_id", bookID),
			slog.Int64("active_id", res.Active.ID),
			slog.Any("duplicate_ids", ids),
		)
	}
	return res
}

// Borrow requests a loan when the current state offers one, then reconciles again.
func (d *Desk) Borrow(ctx context.Context, sess session.Session, bookID int64) (Result, error) {
	current, err := d.State(ctx, sess, bookID)
	if err != nil {
		return current, err
	}
	if current.Affordance != Borrow {
		return current, ErrNotBorrowable
	}
	if err := d.api.BorrowBook(ctx, sess, bookID); err != nil {
		return current, err
	}
	return d.State(ctx, sess, bookID)
}

// Return hands back the active loan after the member confirmed, then reconciles again.
func (d *Desk) Return(ctx context.Context, sess session.Session, bookID int64, confirmed bool) (Result, error) {
	current, err := d.State(ctx, sess, bookID)
	if err != nil {
		return current, err
	}
	if current.Affordance != Return {
		return current, ErrNothingToReturn
	}
	if !confirmed {
		return current, ErrConfirmationRequired
	}
	if err := d.api.ReturnBorrow(ctx, sess, current.Active.ID); err != nil {
		return current, err
	}
	return d.State(ctx, sess, bookID)
}
