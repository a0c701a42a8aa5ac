// Package borrowstate derives what a member may do with a book from their own
// borrow history.
package borrowstate

import (
	"librarydesk/pkg/domain"
)

// Affordance is the single action offered for a book.
type Affordance int

const (
	// Borrow: no active record; the member may request a loan.
	Borrow Affordance = iota
	// PendingApproval: a request is waiting for staff; nothing to do.
	PendingApproval
	// Return: the book is on loan and may be handed back.
	Return
)

func (a Affordance) String() string {
	switch a {
	case PendingApproval:
		return "pending"
	case Return:
		return "return"
	default:
		return "borrow"
	}
}

// Result is the reconciled state for one book.
type Result struct {
	BookID     int64
	Affordance Affordance
	// Active is the record the affordance is derived from, nil for Borrow.
	Active *domain.BorrowRecord
	// Duplicates holds further active records for the same book. The API should
	// never produce them; when it does they are reported, never merged.
	Duplicates []domain.BorrowRecord
}

// Ambiguous reports whether more than one active record exists for the book.
func (r Result) Ambiguous() bool {
	return len(r.Duplicates) > 0
}

// Reconcile picks the first active (pending or borrowed) record for bookID in list
// order and maps it to an affordance.
func Reconcile(records []domain.BorrowRecord, bookID int64) Result {
	res := Result{BookID: bookID, Affordance: Borrow}
	for i := range records {
		rec := records[i]
		if rec.BookID != bookID || !rec.Status.Active() {
			continue
		}
		if res.Active != nil {
			res.Duplicates = append(res.Duplicates, rec)
			continue
		}
		res.Active = &rec
		if rec.Status == domain.BorrowPending {
			res.Affordance = PendingApproval
		} else {
			res.Affordance = Return
		}
	}
	return res
}
