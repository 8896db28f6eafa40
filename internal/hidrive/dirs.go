package hidrive

import (
	"context"
	"fmt"
	"net/http"
)

// GetDir returns the directory id, including members when requested.
// Optional parameters: members, limit, snapshot, snaptime, fields, sort.
func (c *Client) GetDir(ctx context.Context, id Identifier, opts *Params) (*Item, error) {
	var item Item
	if err := c.itemCall(ctx, http.MethodGet, "/dir", c.idParams(id), id, opts, &item); err != nil {
		return nil, err
	}

	return &item, nil
}

// HomeDir returns the user's home directory.
// Optional parameters: members, limit, snapshot, snaptime, fields, sort.
func (c *Client) HomeDir(ctx context.Context, opts *Params) (*Item, error) {
	c.logger.Info("fetching home directory")

	var item Item
	if err := c.NewCall(http.MethodGet, "/dir/home", nil, opts).Decode(ctx, &item); err != nil {
		return nil, fmt.Errorf("GET /dir/home: %w", err)
	}

	return &item, nil
}

// Mkdir creates the directory id, which must include a path.
// Optional parameters: on_exist, mtime, parent_mtime.
func (c *Client) Mkdir(ctx context.Context, id Identifier, opts *Params) (*Item, error) {
	if err := id.requirePath(); err != nil {
		return nil, fmt.Errorf("POST /dir: %w", err)
	}

	var item Item
	if err := c.itemCall(ctx, http.MethodPost, "/dir", c.idParams(id), id, opts, &item); err != nil {
		return nil, err
	}

	return &item, nil
}

// DeleteDir removes the directory id.
// Optional parameters: recursive, parent_mtime.
func (c *Client) DeleteDir(ctx context.Context, id Identifier, opts *Params) error {
	return c.itemCall(ctx, http.MethodDelete, "/dir", c.idParams(id), id, opts, nil)
}

// CopyDir copies a directory tree. to must include a path.
// Optional parameters: on_exist, snapshot, snaptime, dst_parent_mtime, preserve_mtime.
func (c *Client) CopyDir(ctx context.Context, from, to Identifier, opts *Params) (*Item, error) {
	return c.transferItem(ctx, "/dir/copy", from, to, opts)
}

// MoveDir moves a directory tree. to must include a path.
// Optional parameters: on_exist, src_parent_mtime, dst_parent_mtime, preserve_mtime.
func (c *Client) MoveDir(ctx context.Context, from, to Identifier, opts *Params) (*Item, error) {
	return c.transferItem(ctx, "/dir/move", from, to, opts)
}

// RenameDir renames the directory id to name.
// Optional parameters: on_exist (autoname, overwrite), parent_mtime.
func (c *Client) RenameDir(ctx context.Context, id Identifier, name string, opts *Params) (*Item, error) {
	return c.rename(ctx, "/dir/rename", id, name, opts)
}
