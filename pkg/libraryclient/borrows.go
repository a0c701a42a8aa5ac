package libraryclient

import (
	"context"
	"fmt"
	"net/http"

	"librarydesk/pkg/domain"
	"librarydesk/pkg/session"
)

// ListBorrows returns every borrow record; staff only.
func (c *Client) ListBorrows(ctx context.Context, sess session.Session) ([]domain.BorrowRecord, error) {
	return c.listBorrows(ctx, "borrows.list", "/borrow", sess)
}

// ListSelfBorrows returns the caller's own borrow history.
func (c *Client) ListSelfBorrows(ctx context.Context, sess session.Session) ([]domain.BorrowRecord, error) {
	return c.listBorrows(ctx, "borrows.self", "/borrow/self", sess)
}

func (c *Client) listBorrows(ctx context.Context, op, path string, sess session.Session) ([]domain.BorrowRecord, error) {
	body, err := c.do(ctx, op, http.MethodGet, path, sess, nil)
	if err != nil {
		return nil, err
	}
	list, err := DecodeList[domain.BorrowRecord](body)
	return list.Items, err
}

// BorrowBook requests a loan of bookID; the record starts as pending.
func (c *Client) BorrowBook(ctx context.Context, sess session.Session, bookID int64) error {
	return c.borrowAction(ctx, "borrows.create", fmt.Sprintf("/borrow/%d", bookID), sess, nil)
}

func (c *Client) ApproveBorrow(ctx context.Context, sess session.Session, borrowID int64) error {
	return c.borrowAction(ctx, "borrows.approve", fmt.Sprintf("/borrow/%d/approve", borrowID), sess, nil)
}

func (c *Client) RejectBorrow(ctx context.Context, sess session.Session, borrowID int64, reason string) error {
	payload := map[string]string{"reason": reason}
	return c.borrowAction(ctx, "borrows.reject", fmt.Sprintf("/borrow/%d/reject", borrowID), sess, payload)
}

func (c *Client) ReturnBorrow(ctx context.Context, sess session.Session, borrowID int64) error {
	return c.borrowAction(ctx, "borrows.return", fmt.Sprintf("/borrow/%d/return", borrowID), sess, nil)
}

func (c *Client) borrowAction(ctx context.Context, op, path string, sess session.Session, payload any) error {
	body, err := c.do(ctx, op, http.MethodPost, path, sess, payload)
	if err != nil {
		return err
	}
	return decodeAck(body)
}
