package libraryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"librarydesk/pkg/domain"
	"librarydesk/pkg/session"
)

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up request body.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Success *bool       `json:"success"`
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
}

// Login exchanges credentials for a new Session.
func (c *Client) Login(ctx context.Context, creds Credentials) (session.Session, error) {
	return c.authenticate(ctx, "auth.login", "/auth/login", creds)
}

// Register creates a member account and signs it in.
func (c *Client) Register(ctx context.Context, reg Registration) (session.Session, error) {
	return c.authenticate(ctx, "auth.register", "/auth/register", reg)
}

func (c *Client) authenticate(ctx context.Context, op, path string, payload any) (session.Session, error) {
	body, err := c.do(ctx, op, http.MethodPost, path, session.Session{}, payload)
	if err != nil {
		return session.Session{}, err
	}
	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	if resp.Success != nil && !*resp.Success {
		return session.Session{}, &APIError{Status: http.StatusOK, Message: resp.Message}
	}
	if strings.TrimSpace(resp.Token) == "" {
		return session.Session{}, fmt.Errorf("%w: auth response without token", ErrUnrecognizedShape)
	}
	if resp.User.Role == "" {
		resp.User.Role = domain.RoleMember
	}
	return session.Session{Token: resp.Token, User: resp.User}, nil
}
