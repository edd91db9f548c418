package api

import (
	"context"

	"github.com/nmanikumar5/swappio/internal/auth"
	"github.com/nmanikumar5/swappio/internal/rest"
)

// Accounts wraps the auth endpoints. Successful logins install the
// returned credentials into the session; the refresh cookie is set by the
// server and captured by the shared cookie jar.
type Accounts struct {
	c       *rest.Client
	session *auth.Session
}

// NewAccounts creates the accounts API client.
func NewAccounts(c *rest.Client, session *auth.Session) *Accounts {
	return &Accounts{c: c, session: session}
}

type loginResponse struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

// Login authenticates with email/password and installs the credentials.
func (a *Accounts) Login(ctx context.Context, email, password string) (*auth.User, error) {
	var out loginResponse
	if err := a.c.PostJSON(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out); err != nil {
		return nil, err
	}
	if err := a.session.SetCredentials(out.Token, &out.User); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Register creates an account and installs the credentials.
func (a *Accounts) Register(ctx context.Context, name, email, password string) (*auth.User, error) {
	var out loginResponse
	if err := a.c.PostJSON(ctx, "/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &out); err != nil {
		return nil, err
	}
	if err := a.session.SetCredentials(out.Token, &out.User); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout revokes the refresh cookie server-side, then clears local
// credentials. The local clear happens even if the server call fails,
// logging out locally must always succeed.
func (a *Accounts) Logout(ctx context.Context) error {
	serverErr := a.c.PostJSON(ctx, "/auth/logout", nil, nil)
	if err := a.session.Clear(); err != nil {
		return err
	}
	return serverErr
}

// Me fetches the authoritative profile for the current session.
func (a *Accounts) Me(ctx context.Context) (*auth.User, error) {
	var u auth.User
	if err := a.c.GetJSON(ctx, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
