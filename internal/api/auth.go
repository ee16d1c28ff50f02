package api

import (
	"context"
	"net/url"
)

// Login exchanges operator credentials for a bearer token and stores it
// on the client for subsequent requests.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var resp TokenResponse
	if err := c.post(ctx, "/api/auth/login", form, &resp); err != nil {
		return "", err
	}

	c.SetToken(resp.AccessToken)
	return resp.AccessToken, nil
}
