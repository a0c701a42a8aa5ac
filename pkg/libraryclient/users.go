package libraryclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"librarydesk/pkg/domain"
	"librarydesk/pkg/session"
)

// ListUsers lists accounts, optionally filtered by the API's search parameter.
func (c *Client) ListUsers(ctx context.Context, sess session.Session, search string) ([]domain.User, error) {
	path := "/manage-user"
	if search = strings.TrimSpace(search); search != "" {
		path += "?" + url.Values{"search": {search}}.Encode()
	}
	body, err := c.do(ctx, "users.list", http.MethodGet, path, sess, nil)
	if err != nil {
		return nil, err
	}
	list, err := DecodeList[domain.User](body)
	return list.Items, err
}

func (c *Client) CreateUser(ctx context.Context, sess session.Session, payload any) error {
	body, err := c.do(ctx, "users.create", http.MethodPost, "/manage-user", sess, payload)
	if err != nil {
		return err
	}
	return decodeAck(body)
}

func (c *Client) UpdateUser(ctx context.Context, sess session.Session, id int64, payload any) error {
	body, err := c.do(ctx, "users.update", http.MethodPut, fmt.Sprintf("/manage-user/%d", id), sess, payload)
	if err != nil {
		return err
	}
	return decodeAck(body)
}

func (c *Client) DeleteUser(ctx context.Context, sess session.Session, id int64) error {
	body, err := c.do(ctx, "users.delete", http.MethodDelete, fmt.Sprintf("/manage-user/%d", id), sess, nil)
	if err != nil {
		return err
	}
	return decodeAck(body)
}

// ChangeUserPassword sets a new password for another account.
func (c *Client) ChangeUserPassword(ctx context.Context, sess session.Session, id int64, password string) error {
	payload := map[string]string{"password": password}
	body, err := c.do(ctx, "users.password", http.MethodPatch, fmt.Sprintf("/manage-user/%d/password", id), sess, payload)
	if err != nil {
		return err
	}
	return decodeAck(body)
}
