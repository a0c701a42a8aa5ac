package libraryclient

import (
	"context"
	"fmt"
	"net/http"

	"librarydesk/pkg/domain"
	"librarydesk/pkg/session"
)

func (c *Client) ListBooks(ctx context.Context, sess session.Session) ([]domain.Book, error) {
	body, err := c.do(ctx, "books.list", http.MethodGet, "/book", sess, nil)
	if err != nil {
		return nil, err
	}
	list, err := DecodeList[domain.Book](body)
	return list.Items, err
}

func (c *Client) GetBook(ctx context.Context, sess session.Session, id int64) (domain.Book, error) {
	body, err := c.do(ctx, "books.get", http.MethodGet, fmt.Sprintf("/book/%d", id), sess, nil)
	if err != nil {
		return domain.Book{}, err
	}
	return DecodeOne[domain.Book](body)
}

// CreateBook posts payload as-is; admin forms send a typed field map.
func (c *Client) CreateBook(ctx context.Context, sess session.Session, payload any) error {
	body, err := c.do(ctx, "books.create", http.MethodPost, "/book", sess, payload)
	if err != nil {
		return err
	}
	return decodeAck(body)
}

func (c *Client) UpdateBook(ctx context.Context, sess session.Session, id int64, payload any) error {
	body, err := c.do(ctx, "books.update", http.MethodPut, fmt.Sprintf("/book/%d", id), sess, payload)
	if err != nil {
		return err
	}
	return decodeAck(body)
}

func (c *Client) DeleteBook(ctx context.Context, sess session.Session, id int64) error {
	body, err := c.do(ctx, "books.delete", http.MethodDelete, fmt.Sprintf("/book/%d", id), sess, nil)
	if err != nil {
		return err
	}
	return decodeAck(body)
}
