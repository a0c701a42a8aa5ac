package libraryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"librarydesk/pkg/domain"
	"librarydesk/pkg/session"
)

// CategoryBooks is the response of GET /category/{id}/books.
type CategoryBooks struct {
	Category   domain.Category
	Books      []domain.Book
	Pagination *domain.Pagination
}

func (c *Client) ListCategories(ctx context.Context, sess session.Session) ([]domain.Category, error) {
	body, err := c.do(ctx, "categories.list", http.MethodGet, "/category", sess, nil)
	if err != nil {
		return nil, err
	}
	list, err := DecodeList[domain.Category](body)
	return list.Items, err
}

func (c *Client) GetCategory(ctx context.Context, sess session.Session, id int64) (domain.Category, error) {
	body, err := c.do(ctx, "categories.get", http.MethodGet, fmt.Sprintf("/category/%d", id), sess, nil)
	if err != nil {
		return domain.Category{}, err
	}
	return DecodeOne[domain.Category](body)
}

func (c *Client) CreateCategory(ctx context.Context, sess session.Session, payload any) error {
	body, err := c.do(ctx, "categories.create", http.MethodPost, "/category", sess, payload)
	if err != nil {
		return err
	}
	return decodeAck(body)
}

func (c *Client) UpdateCategory(ctx context.Context, sess session.Session, id int64, payload any) error {
	body, err := c.do(ctx, "categories.update", http.MethodPut, fmt.Sprintf("/category/%d", id), sess, payload)
	if err != nil {
		return err
	}
	return decodeAck(body)
}

func (c *Client) DeleteCategory(ctx context.Context, sess session.Session, id int64) error {
	body, err := c.do(ctx, "categories.delete", http.MethodDelete, fmt.Sprintf("/category/%d", id), sess, nil)
	if err != nil {
		return err
	}
	return decodeAck(body)
}

// CategoryBooks lists the books of one category. The category itself rides next
// to data in the envelope.
func (c *Client) CategoryBooks(ctx context.Context, sess session.Session, id int64) (CategoryBooks, error) {
	body, err := c.do(ctx, "categories.books", http.MethodGet, fmt.Sprintf("/category/%d/books", id), sess, nil)
	if err != nil {
		return CategoryBooks{}, err
	}
	list, err := DecodeList[domain.Book](body)
	if err != nil {
		return CategoryBooks{}, err
	}
	out := CategoryBooks{Books: list.Items, Pagination: list.Pagination}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var extra struct {
			Category *domain.Category `json:"category"`
		}
		if err := json.Unmarshal(trimmed, &extra); err != nil {
			return CategoryBooks{}, fmt.Errorf("decode category: %w", err)
		}
		if extra.Category != nil {
			out.Category = *extra.Category
		}
	}
	if out.Category.ID == 0 {
		out.Category.ID = id
	}
	return out, nil
}
