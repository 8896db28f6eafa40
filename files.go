package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/hidrive-go/internal/hidrive"
)

// Field selections for listing and metadata calls.
const (
	dirFields  = "id,path,type,members.id,members.name,members.type,members.size,members.mtime"
	statFields = "id,parent_id,name,path,type,size,mtime,ctime,mime_type,chash,readable,writable,nmembers"
	typeFields = "id,name,type,size"
)

// partialSuffix marks a download that has not completed yet.
const partialSuffix = ".partial"

// localFilePerms is the mode of downloaded files.
const localFilePerms = 0o644

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Long: `List a remote directory. Absolute paths start with "/"; anything else is
relative to the home directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLs,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path>...",
		Short: "Upload files",
		Long: `Upload one or more local files into a remote directory (the home
directory unless --to is given). Several files are uploaded in parallel,
up to [transfers] parallel_uploads at a time.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPut,
	}

	cmd.Flags().String("to", "", "remote directory to upload into")
	cmd.Flags().Bool("no-overwrite", false, "fail instead of replacing an existing file")

	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder",
		Long: `Delete a file or folder on HiDrive. Deletion is permanent.

Folders are only deleted with --recursive (-r).`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "delete folders and their contents")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

func newMvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mv <source> <destination>",
		Short: "Move a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runMv,
	}

	cmd.Flags().String("on-exist", "", "conflict handling: autoname or overwrite")

	return cmd
}

func newCpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cp <source> <destination>",
		Short: "Copy a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runCp,
	}

	cmd.Flags().String("on-exist", "", "conflict handling: autoname or overwrite")

	return cmd
}

func newRenameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file or folder in place",
		Args:  cobra.ExactArgs(2),
		RunE:  runRename,
	}

	cmd.Flags().String("on-exist", "", "conflict handling: autoname or overwrite")

	return cmd
}

func newURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <path>",
		Short: "Print a temporary public download URL for a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runURL,
	}
}

func newHashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash <path>",
		Short: "Print the server-side content hash of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runHash,
	}

	cmd.Flags().Uint("level", 1, "hash tree level")

	return cmd
}

// onExistOpts returns the optional on_exist parameter from the command's flag.
func onExistOpts(cmd *cobra.Command) (*hidrive.Params, error) {
	v, err := cmd.Flags().GetString("on-exist")
	if err != nil {
		return nil, err
	}

	switch v {
	case "":
		return hidrive.NoParams, nil
	case "autoname", "overwrite":
		return hidrive.NewParams().AddString("on_exist", v), nil
	default:
		return nil, fmt.Errorf("invalid --on-exist %q (want autoname or overwrite)", v)
	}
}

// lookup resolves a remote path and fetches enough metadata to tell files
// from folders.
func (s *session) lookup(ctx context.Context, remote string) (hidrive.Identifier, *hidrive.Item, error) {
	id, err := s.resolve(ctx, remote)
	if err != nil {
		return hidrive.Identifier{}, nil, err
	}

	item, err := s.client.Metadata(ctx, id, typeFields, nil)
	if err != nil {
		return hidrive.Identifier{}, nil, fmt.Errorf("resolving %q: %w", remote, err)
	}

	return id, item, nil
}

func runLs(cmd *cobra.Command, args []string) error {
	remotePath := ""
	if len(args) > 0 {
		remotePath = args[0]
	}

	ctx := cmd.Context()

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	id, err := s.resolve(ctx, remotePath)
	if err != nil {
		return err
	}

	s.logger.Debug("ls", "id", id.String())

	dir, err := s.client.GetDir(ctx, id, hidrive.NewParams().
		AddString("members", "all").
		AddString("fields", dirFields))
	if err != nil {
		return fmt.Errorf("listing %q: %w", remotePath, err)
	}

	if flagJSON {
		return printItemsJSON(os.Stdout, dir.Members)
	}

	printItemsTable(os.Stdout, dir.Members)

	return nil
}

// itemJSON is the JSON output schema for a single item.
type itemJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Modified string `json:"modified_at,omitempty"`
}

func toItemJSON(it *hidrive.Item) itemJSON {
	out := itemJSON{
		ID:   it.ID,
		Name: it.Name,
		Path: it.Path,
		Type: it.Type,
		Size: it.Size,
	}

	if mt := it.ModTime(); !mt.IsZero() {
		out.Modified = mt.Format("2006-01-02T15:04:05Z")
	}

	return out
}

func printItemsJSON(w io.Writer, items []hidrive.Item) error {
	out := make([]itemJSON, 0, len(items))
	for i := range items {
		out = append(out, toItemJSON(&items[i]))
	}

	return printJSON(w, out)
}

func printItemsTable(w io.Writer, items []hidrive.Item) {
	// Folders first, then alphabetical.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsDir() != items[j].IsDir() {
			return items[i].IsDir()
		}

		return items[i].Name < items[j].Name
	})

	headers := []string{"NAME", "SIZE", "MODIFIED"}
	rows := make([][]string, 0, len(items))

	for i := range items {
		name := items[i].Name
		size := formatSize(items[i].Size)

		if items[i].IsDir() {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{name, size, formatTime(items[i].ModTime())})
	}

	printTable(w, headers, rows)
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	id, err := s.resolve(ctx, args[0])
	if err != nil {
		return err
	}

	item, err := s.client.Metadata(ctx, id, statFields, nil)
	if err != nil {
		return fmt.Errorf("stat %q: %w", args[0], err)
	}

	if flagJSON {
		return printJSON(os.Stdout, toItemJSON(item))
	}

	printStat(os.Stdout, item)

	return nil
}

func printStat(w io.Writer, item *hidrive.Item) {
	fmt.Fprintf(w, "Name:     %s\n", item.Name)
	fmt.Fprintf(w, "Path:     %s\n", item.Path)
	fmt.Fprintf(w, "ID:       %s\n", item.ID)
	fmt.Fprintf(w, "Type:     %s\n", item.Type)

	if item.IsDir() {
		fmt.Fprintf(w, "Members:  %d\n", item.MemberCount)
	} else {
		fmt.Fprintf(w, "Size:     %s (%d bytes)\n", formatSize(item.Size), item.Size)
		fmt.Fprintf(w, "MIME:     %s\n", item.MIMEType)
	}

	fmt.Fprintf(w, "Modified: %s\n", formatTime(item.ModTime()))

	if item.ContentHash != "" {
		fmt.Fprintf(w, "CHash:    %s\n", item.ContentHash)
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	ctx := cmd.Context()

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	id, item, err := s.lookup(ctx, remotePath)
	if err != nil {
		return err
	}

	if item.IsDir() {
		return fmt.Errorf("%q is a folder, not a file", remotePath)
	}

	localPath := item.Name
	if len(args) > 1 {
		localPath = args[1]
	}

	if fi, statErr := os.Stat(localPath); statErr == nil && fi.IsDir() {
		localPath = filepath.Join(localPath, item.Name)
	}

	s.logger.Debug("get", "remote_path", remotePath, "local_path", localPath)

	n, err := downloadToFile(ctx, s, id, localPath, item.Size)
	if err != nil {
		return err
	}

	statusf("Downloaded %s (%s)\n", localPath, formatSize(n))

	return nil
}

// downloadToFile downloads id into localPath through a ".partial" file that
// is renamed into place only after the transfer completes.
func downloadToFile(ctx context.Context, s *session, id hidrive.Identifier, localPath string, size int64) (int64, error) {
	partialPath := localPath + partialSuffix

	f, err := os.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, localFilePerms)
	if err != nil {
		return 0, fmt.Errorf("creating partial file for download: %w", err)
	}

	progress := newProgress(filepath.Base(localPath), size)

	n, dlErr := s.client.DownloadFileProgress(ctx, id, f, nil, progress.Func())

	progress.Done()

	closeErr := f.Close()

	if dlErr == nil && closeErr != nil {
		dlErr = fmt.Errorf("closing %s: %w", partialPath, closeErr)
	}

	if dlErr != nil {
		if rmErr := os.Remove(partialPath); rmErr != nil {
			s.logger.Warn("removing partial download",
				slog.String("path", partialPath),
				slog.String("error", rmErr.Error()),
			)
		}

		return n, fmt.Errorf("downloading %s: %w", id, dlErr)
	}

	if err := os.Rename(partialPath, localPath); err != nil {
		return n, fmt.Errorf("renaming download to %q: %w", localPath, err)
	}

	return n, nil
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	to, err := cmd.Flags().GetString("to")
	if err != nil {
		return err
	}

	noOverwrite, err := cmd.Flags().GetBool("no-overwrite")
	if err != nil {
		return err
	}

	// Check every local file before the first upload starts.
	for _, localPath := range args {
		fi, statErr := os.Stat(localPath)
		if statErr != nil {
			return fmt.Errorf("stating local file: %w", statErr)
		}

		if fi.IsDir() {
			return fmt.Errorf("%q is a directory, not a file", localPath)
		}
	}

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	dir, err := s.resolve(ctx, to)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ParallelUploads)

	// A single upload gets a progress line; parallel ones would garble it.
	showProgress := len(args) == 1

	for _, localPath := range args {
		g.Go(func() error {
			item, upErr := uploadFile(gctx, s, dir, localPath, noOverwrite, showProgress)
			if upErr != nil {
				return upErr
			}

			statusf("Uploaded %s (%s)\n", item.Path, formatSize(item.Size))

			return nil
		})
	}

	return g.Wait()
}

// uploadName returns the remote name for a local file, in NFC so names
// created on macOS match the same names typed elsewhere.
func uploadName(localPath string) string {
	return norm.NFC.String(filepath.Base(localPath))
}

// uploadFile sends one local file into dir. The *os.File body is seekable,
// so the request can be replayed after a token refresh.
func uploadFile(
	ctx context.Context, s *session, dir hidrive.Identifier, localPath string, noOverwrite, showProgress bool,
) (*hidrive.Item, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening local file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stating local file: %w", err)
	}

	name := uploadName(localPath)

	var progress *progressLine
	if showProgress {
		progress = newProgress(name, fi.Size())
	}

	up := hidrive.Upload{Body: f, Size: fi.Size(), Progress: progress.Func()}
	opts := hidrive.NewParams().AddInt("mtime", fi.ModTime().Unix())

	s.logger.Debug("put", "local_path", localPath, "name", name, "size", fi.Size())

	var item *hidrive.Item
	if noOverwrite {
		item, err = s.client.UploadFileNoOverwrite(ctx, dir, name, up, opts)
	} else {
		item, err = s.client.UploadFile(ctx, dir, name, up, opts)
	}

	progress.Done()

	if err != nil {
		if errors.Is(err, hidrive.ErrConflict) {
			return nil, fmt.Errorf("uploading %q: %s already exists", localPath, name)
		}

		return nil, fmt.Errorf("uploading %q: %w", localPath, err)
	}

	return item, nil
}

func runRm(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	ctx := cmd.Context()

	recursive, err := cmd.Flags().GetBool("recursive")
	if err != nil {
		return err
	}

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	id, item, err := s.lookup(ctx, remotePath)
	if err != nil {
		return err
	}

	if item.IsDir() {
		if !recursive {
			return fmt.Errorf("%q is a folder, use -r to delete it and its contents", remotePath)
		}

		err = s.client.DeleteDir(ctx, id, hidrive.NewParams().AddBool("recursive", true))
	} else {
		err = s.client.DeleteFile(ctx, id, nil)
	}

	if err != nil {
		return fmt.Errorf("deleting %q: %w", remotePath, err)
	}

	statusf("Deleted %s\n", remotePath)

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	id, err := s.resolve(ctx, args[0])
	if err != nil {
		return err
	}

	item, err := s.client.Mkdir(ctx, id, nil)
	if err != nil {
		return fmt.Errorf("creating folder %q: %w", args[0], err)
	}

	statusf("Created %s\n", item.Path)

	return nil
}

func runMv(cmd *cobra.Command, args []string) error {
	return runTransfer(cmd, args, "Moved", (*hidrive.Client).MoveFile, (*hidrive.Client).MoveDir)
}

func runCp(cmd *cobra.Command, args []string) error {
	return runTransfer(cmd, args, "Copied", (*hidrive.Client).CopyFile, (*hidrive.Client).CopyDir)
}

type transferFunc func(*hidrive.Client, context.Context, hidrive.Identifier, hidrive.Identifier, *hidrive.Params) (*hidrive.Item, error)

// runTransfer implements mv and cp. A destination naming an existing folder
// receives the source under its own name.
func runTransfer(cmd *cobra.Command, args []string, verb string, fileFn, dirFn transferFunc) error {
	ctx := cmd.Context()

	opts, err := onExistOpts(cmd)
	if err != nil {
		return err
	}

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	from, item, err := s.lookup(ctx, args[0])
	if err != nil {
		return err
	}

	dst := args[1]
	if strings.HasSuffix(dst, "/") || isRemoteDir(ctx, s, dst) {
		dst = path.Join(dst, item.Name)
	}

	to, err := s.resolve(ctx, dst)
	if err != nil {
		return err
	}

	fn := fileFn
	if item.IsDir() {
		fn = dirFn
	}

	out, err := fn(s.client, ctx, from, to, opts)
	if err != nil {
		return fmt.Errorf("%s %q to %q: %w", strings.ToLower(verb), args[0], args[1], err)
	}

	statusf("%s %s to %s\n", verb, args[0], out.Path)

	return nil
}

// isRemoteDir reports whether remote names an existing folder. Lookup
// failures count as "no".
func isRemoteDir(ctx context.Context, s *session, remote string) bool {
	_, item, err := s.lookup(ctx, remote)
	return err == nil && item.IsDir()
}

func runRename(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	opts, err := onExistOpts(cmd)
	if err != nil {
		return err
	}

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	id, item, err := s.lookup(ctx, args[0])
	if err != nil {
		return err
	}

	name := norm.NFC.String(args[1])

	var out *hidrive.Item
	if item.IsDir() {
		out, err = s.client.RenameDir(ctx, id, name, opts)
	} else {
		out, err = s.client.RenameFile(ctx, id, name, opts)
	}

	if err != nil {
		return fmt.Errorf("renaming %q: %w", args[0], err)
	}

	statusf("Renamed %s to %s\n", args[0], out.Name)

	return nil
}

func runURL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	id, err := s.resolve(ctx, args[0])
	if err != nil {
		return err
	}

	u, err := s.client.FileURL(ctx, id, nil)
	if err != nil {
		return fmt.Errorf("getting URL for %q: %w", args[0], err)
	}

	if flagJSON {
		return printJSON(os.Stdout, u)
	}

	fmt.Println(u.URL)

	return nil
}

// hashOutput is the JSON schema for `hash --json`.
type hashOutput struct {
	Path  string `json:"path"`
	Level uint   `json:"level"`
	CHash string `json:"chash"`
}

func runHash(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	level, err := cmd.Flags().GetUint("level")
	if err != nil {
		return err
	}

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	id, err := s.resolve(ctx, args[0])
	if err != nil {
		return err
	}

	h, err := s.client.FileHash(ctx, id, level, nil, nil)
	if err != nil {
		return fmt.Errorf("hashing %q: %w", args[0], err)
	}

	if flagJSON {
		return printJSON(os.Stdout, hashOutput{Path: args[0], Level: h.Level, CHash: h.CHash})
	}

	fmt.Printf("%s  %s\n", h.CHash, args[0])

	return nil
}
