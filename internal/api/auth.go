package api

import (
	"context"
	"net/url"
)

// SignupRequest is the payload for account creation.
type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	UniqueID string `json:"uniqueId"`
}

// AuthResponse is returned by signup and login. Older server versions put
// the user id in _id instead of userId.
type AuthResponse struct {
	Message      string `json:"message"`
	Token        string `json:"token"`
	UserID       string `json:"userId"`
	LegacyID     string `json:"_id"`
	Nickname     string `json:"nickname"`
	UniqueID     string `json:"uniqueId"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage"`
}

// ID returns the user id, whichever field the server used.
func (r *AuthResponse) ID() string {
	if r.UserID != "" {
		return r.UserID
	}
	return r.LegacyID
}

// Login authenticates with username and password.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	var resp AuthResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.doRequest(ctx, "POST", "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Signup creates a new account.
func (c *Client) Signup(ctx context.Context, req *SignupRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.doRequest(ctx, "POST", "/auth/signup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout invalidates the session server-side. Local state teardown is the
// lifecycle manager's job, not this client's.
func (c *Client) Logout(ctx context.Context) error {
	return c.doRequest(ctx, "POST", "/auth/logout", nil, nil)
}

// DeleteAccount removes the account server-side.
func (c *Client) DeleteAccount(ctx context.Context, userID string) error {
	return c.doRequest(ctx, "DELETE", "/auth/deleteaccount/"+url.PathEscape(userID), nil, nil)
}

// ForgotUsername requests a username reminder email.
func (c *Client) ForgotUsername(ctx context.Context, email string) error {
	return c.doRequest(ctx, "POST", "/auth/forgotusername", map[string]string{"email": email}, nil)
}

// ForgotPassword requests a password reset email.
func (c *Client) ForgotPassword(ctx context.Context, username, email string) error {
	body := map[string]string{"username": username, "email": email}
	return c.doRequest(ctx, "POST", "/auth/forgotpassword", body, nil)
}
