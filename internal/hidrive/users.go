package hidrive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Me returns the authenticated user's account.
func (c *Client) Me(ctx context.Context, opts *Params) (*User, error) {
	c.logger.Info("fetching authenticated user")

	var u User
	if err := c.NewCall(http.MethodGet, "/user/me", nil, opts).Decode(ctx, &u); err != nil {
		return nil, fmt.Errorf("GET /user/me: %w", err)
	}

	return &u, nil
}

// GetPermission returns the permissions on id.
// Optional parameters: account, fields.
func (c *Client) GetPermission(ctx context.Context, id Identifier, opts *Params) (*Permissions, error) {
	return c.permission(ctx, http.MethodGet, id, opts)
}

// SetPermission updates the permissions on id.
// Optional parameters: account, invite_id, readable, writable.
func (c *Client) SetPermission(ctx context.Context, id Identifier, opts *Params) (*Permissions, error) {
	return c.permission(ctx, http.MethodPut, id, opts)
}

func (c *Client) permission(ctx context.Context, method string, id Identifier, opts *Params) (*Permissions, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	c.logger.Info("permission request",
		slog.String("method", method),
		slog.String("id", id.String()),
	)

	p := id.AddTo(NewParams(), "pid", "path")

	var perm Permissions
	if err := c.NewCall(method, "/permission", p, opts).Decode(ctx, &perm); err != nil {
		return nil, fmt.Errorf("%s /permission: %w", method, err)
	}

	return &perm, nil
}
