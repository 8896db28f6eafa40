package hidrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrEmptyName is returned when an upload or rename has no target name.
var ErrEmptyName = errors.New("hidrive: name must not be empty")

// DownloadFile streams the content of id into w and returns the bytes written.
// Optional parameters: snapshot, snaptime.
func (c *Client) DownloadFile(ctx context.Context, id Identifier, w io.Writer, opts *Params) (int64, error) {
	return c.download(ctx, "/file", id, w, opts, nil)
}

// DownloadFileProgress is DownloadFile with a progress callback.
func (c *Client) DownloadFileProgress(
	ctx context.Context, id Identifier, w io.Writer, opts *Params, progress ProgressFunc,
) (int64, error) {
	return c.download(ctx, "/file", id, w, opts, progress)
}

// Thumbnail streams a thumbnail of id into w.
// Optional parameters: width, height, mode, snapshot, snaptime.
func (c *Client) Thumbnail(ctx context.Context, id Identifier, w io.Writer, opts *Params) (int64, error) {
	return c.download(ctx, "/file/thumbnail", id, w, opts, nil)
}

func (c *Client) download(
	ctx context.Context, path string, id Identifier, w io.Writer, opts *Params, progress ProgressFunc,
) (int64, error) {
	if err := id.Validate(); err != nil {
		return 0, err
	}

	c.logger.Info("downloading",
		slog.String("endpoint", path),
		slog.String("id", id.String()),
	)

	p := id.AddTo(NewParams(), "pid", "path")

	n, err := c.NewCall(http.MethodGet, path, p, opts).WithProgress(progress).DownloadTo(ctx, w)
	if err != nil {
		return n, fmt.Errorf("GET %s: %w", path, err)
	}

	return n, nil
}

// FileURL returns a public download URL for id, valid for a limited time.
func (c *Client) FileURL(ctx context.Context, id Identifier, opts *Params) (*FileURL, error) {
	var u FileURL
	if err := c.itemCall(ctx, http.MethodGet, "/file/url", c.idParams(id), id, opts, &u); err != nil {
		return nil, err
	}

	return &u, nil
}

// Upload describes a file body for UploadFile and UploadFileNoOverwrite.
// Size is the exact length or -1 when unknown.
type Upload struct {
	Body     io.Reader
	Size     int64
	Progress ProgressFunc
}

// UploadFile creates or overwrites name in the directory dir.
// Optional parameters: mtime, parent_mtime.
func (c *Client) UploadFile(ctx context.Context, dir Identifier, name string, up Upload, opts *Params) (*Item, error) {
	return c.upload(ctx, http.MethodPut, dir, name, up, opts)
}

// UploadFileNoOverwrite creates name in dir and fails with ErrConflict if it exists.
// Optional parameters: mtime, parent_mtime, on_exist.
func (c *Client) UploadFileNoOverwrite(
	ctx context.Context, dir Identifier, name string, up Upload, opts *Params,
) (*Item, error) {
	return c.upload(ctx, http.MethodPost, dir, name, up, opts)
}

func (c *Client) upload(
	ctx context.Context, method string, dir Identifier, name string, up Upload, opts *Params,
) (*Item, error) {
	if err := dir.Validate(); err != nil {
		return nil, err
	}

	if name == "" {
		return nil, ErrEmptyName
	}

	c.logger.Info("uploading file",
		slog.String("method", method),
		slog.String("dir", dir.String()),
		slog.String("name", name),
		slog.Int64("size", up.Size),
	)

	p := dir.AddTo(NewParams(), "dir_id", "dir").AddString("name", name)

	var item Item

	err := c.NewCall(method, "/file", p, opts).
		WithBody(up.Body, up.Size).
		WithProgress(up.Progress).
		Decode(ctx, &item)
	if err != nil {
		return nil, fmt.Errorf("%s /file: %w", method, err)
	}

	return &item, nil
}

// TruncateFile sets the size of id. Growing a file makes it sparse.
func (c *Client) TruncateFile(ctx context.Context, id Identifier, size uint64, opts *Params) (*Item, error) {
	p := NewParams().AddUint("size", size)

	var item Item
	if err := c.itemCall(ctx, http.MethodPost, "/file/truncate", id.AddTo(p, "pid", "path"), id, opts, &item); err != nil {
		return nil, err
	}

	return &item, nil
}

// CopyFile copies from to to. to must include a path.
// Optional parameters: snapshot, snaptime, dst_parent_mtime, preserve_mtime.
func (c *Client) CopyFile(ctx context.Context, from, to Identifier, opts *Params) (*Item, error) {
	return c.transferItem(ctx, "/file/copy", from, to, opts)
}

// MoveFile moves from to to. to must include a path.
func (c *Client) MoveFile(ctx context.Context, from, to Identifier, opts *Params) (*Item, error) {
	return c.transferItem(ctx, "/file/move", from, to, opts)
}

// RenameFile renames id to name.
// Optional parameters: on_exist (autoname, overwrite), parent_mtime.
func (c *Client) RenameFile(ctx context.Context, id Identifier, name string, opts *Params) (*Item, error) {
	return c.rename(ctx, "/file/rename", id, name, opts)
}

// DeleteFile removes id. Optional parameters: parent_mtime.
func (c *Client) DeleteFile(ctx context.Context, id Identifier, opts *Params) error {
	return c.itemCall(ctx, http.MethodDelete, "/file", c.idParams(id), id, opts, nil)
}

// Metadata returns the requested fields of id.
func (c *Client) Metadata(ctx context.Context, id Identifier, fields string, opts *Params) (*Item, error) {
	p := c.idParams(id)
	if fields != "" {
		p.AddString("fields", fields)
	}

	var item Item
	if err := c.itemCall(ctx, http.MethodGet, "/meta", p, id, opts, &item); err != nil {
		return nil, err
	}

	return &item, nil
}

// Search lists items below root. An empty fields selects the server default.
// Optional parameters: pattern, type, limit.
func (c *Client) Search(ctx context.Context, root Identifier, fields string, opts *Params) ([]Item, error) {
	p := c.idParams(root)
	if fields != "" {
		p.AddString("fields", fields)
	}

	var res searchResult
	if err := c.itemCall(ctx, http.MethodGet, "/search", p, root, opts, &res); err != nil {
		return nil, err
	}

	return res.Result, nil
}

// idParams returns the conventional pid/path parameters for id.
func (c *Client) idParams(id Identifier) *Params {
	return id.AddTo(NewParams(), "pid", "path")
}

// itemCall validates id, dispatches, and decodes into v (nil for no content),
// adding endpoint context to any error.
func (c *Client) itemCall(
	ctx context.Context, method, path string, p *Params, id Identifier, opts *Params, v any,
) error {
	if err := id.Validate(); err != nil {
		return err
	}

	c.logger.Info("item request",
		slog.String("method", method),
		slog.String("endpoint", path),
		slog.String("id", id.String()),
	)

	if err := c.NewCall(method, path, p, opts).Decode(ctx, v); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	return nil
}

// transferItem implements copy and move for files and directories.
func (c *Client) transferItem(ctx context.Context, path string, from, to Identifier, opts *Params) (*Item, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}

	if err := to.requirePath(); err != nil {
		return nil, fmt.Errorf("%s destination: %w", path, err)
	}

	p := from.AddTo(NewParams(), "src_id", "src")
	to.AddTo(p, "dst_id", "dst")

	var item Item
	if err := c.itemCall(ctx, http.MethodPost, path, p, from, opts, &item); err != nil {
		return nil, err
	}

	return &item, nil
}

func (c *Client) rename(ctx context.Context, path string, id Identifier, name string, opts *Params) (*Item, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	p := NewParams().AddString("name", name)

	var item Item
	if err := c.itemCall(ctx, http.MethodPost, path, id.AddTo(p, "pid", "path"), id, opts, &item); err != nil {
		return nil, err
	}

	return &item, nil
}
