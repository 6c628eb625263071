package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/neptunelabs/fsi-client/internal/listing"
	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/queue"
	"github.com/neptunelabs/fsi-client/internal/util/filter"
	fsistrings "github.com/neptunelabs/fsi-client/internal/util/strings"
)

// treeFlags select and filter the entries of a tree read.
type treeFlags struct {
	recursive   bool
	depth       int
	typeFilter  string
	include     string
	exclude     string
	paths       string
	dropEntries bool
}

func (f *treeFlags) register(cmd *cobra.Command, full bool) {
	cmd.Flags().BoolVarP(&f.recursive, "recursive", "r", false, "Include subdirectories")
	cmd.Flags().IntVar(&f.depth, "depth", 0, "Maximum recursion depth (0 = config default, -1 = unlimited)")
	cmd.Flags().StringVar(&f.include, "include", "", "Comma-separated file name patterns to include (e.g. '*.jpg,*.tif')")
	cmd.Flags().StringVar(&f.exclude, "exclude", "", "Comma-separated patterns to exclude; also prunes directories")
	cmd.Flags().StringVar(&f.paths, "path", "", "Comma-separated relative path patterns, ** matches any directories")
	if full {
		cmd.Flags().StringVar(&f.typeFilter, "type", "all", "Entry types to list: all, files or dirs")
		cmd.Flags().BoolVar(&f.dropEntries, "drop-entries", false, "Only count entries, print the summary")
	}
}

// options converts the flags for a read starting at base.
func (f *treeFlags) options(base string) (listing.Options, error) {
	opts := listing.Options{
		Recursive:         f.recursive,
		MaxRecursiveDepth: f.depth,
		DropEntries:       f.dropEntries,
	}
	if f.typeFilter != "" {
		tf, ok := models.ParseTypeFilter(f.typeFilter)
		if !ok {
			return opts, fmt.Errorf("invalid --type %q: must be all, files or dirs", f.typeFilter)
		}
		opts.TypeFilter = tf
	}
	fc := filter.Config{
		Include:     filter.ParsePatternList(f.include),
		Exclude:     filter.ParsePatternList(f.exclude),
		PathInclude: filter.ParsePatternList(f.paths),
		Base:        base,
	}
	opts.FileFilter = fc.NamePredicate()
	opts.DirFilter = fc.DirPredicate()
	return opts, nil
}

func newListCmd() *cobra.Command {
	var (
		tf        treeFlags
		local     bool
		jsonOut   bool
		hidden    bool
		blacklist []string
	)
	cmd := &cobra.Command{
		Use:   "list <path>",
		Short: "List a server or local directory",
		Long: `List the entries of a directory on the FSI Server, or on the local
filesystem with --local. Use -r to descend into subdirectories.

Examples:
  fsi-client list images/
  fsi-client list images/ -r --depth 2 --type files --include '*.jpg'
  fsi-client list ./photos --local -r --drop-entries`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := tf.options(args[0])
			if err != nil {
				return err
			}
			opts.Blacklist = blacklist

			s, err := newSession(cmd.OutOrStdout(), needsFor(local))
			if err != nil {
				return err
			}
			var q *queue.Queue
			if local {
				q = s.newQueueWithHidden(hidden)
				q.ListLocal(args[0], opts)
			} else {
				q = s.loginQueue()
				q.ListServer(args[0], opts)
				q.Logout()
			}
			runErr := s.run(cmd.Context(), q)

			var l *models.Listing
			for _, r := range q.Results() {
				if rl, ok := r.(*models.Listing); ok {
					l = rl
				}
			}
			if l == nil {
				return runErr
			}
			if jsonOut {
				return errors.Join(writeJSON(s.out, l), runErr)
			}
			return errors.Join(printListing(s.out, l), runErr)
		},
	}
	tf.register(cmd, true)
	cmd.Flags().BoolVar(&local, "local", false, "List a local directory")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the listing as JSON")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "Include hidden local files")
	cmd.Flags().StringSliceVar(&blacklist, "skip-dir", nil, "Server directories or patterns never descended")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printListing(w io.Writer, l *models.Listing) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(l.Entries) > 0 {
		fmt.Fprintln(tw, "TYPE\tSIZE\tMODIFIED\tPATH")
	}
	for _, e := range l.Entries {
		size := ""
		if !e.IsDir() {
			size = fsistrings.Bytes(e.Size)
		}
		modified := ""
		if !e.LastModified.IsZero() {
			modified = e.LastModified.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, size, modified, e.FullPath())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	sum := l.Summary
	fmt.Fprintf(w, "\n%s, %s, %s\n",
		fsistrings.Count(sum.EntryCount.Directories, "directory"),
		fsistrings.Count(sum.EntryCount.Files, "file"),
		fsistrings.Bytes(sum.ClientInfo.Bytes))
	if sum.SkippedDirectories > 0 {
		fmt.Fprintf(w, "%s not read (depth limit)\n", fsistrings.Count(sum.SkippedDirectories, "directory"))
	}
	return nil
}

func newDownloadCmd() *cobra.Command {
	var (
		tf        treeFlags
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "download <remote> <target>",
		Short: "Download files or directories",
		Long: `Download a server file or directory into a local directory, an S3 bucket
(s3://bucket/prefix) or an Azure container (azblob://container/prefix).
A directory is recreated below the target; use -r to include its content.

Examples:
  fsi-client download images/a.jpg ./out
  fsi-client download images/summer -r ./out --include '*.jpg'
  fsi-client download images/summer -r s3://archive/fsi`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := tf.options(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(cmd.OutOrStdout(), needLogin)
			if err != nil {
				return err
			}
			q := s.loginQueue()
			q.AddServerPath(args[0], tf.recursive, opts)
			q.BatchDownload(args[1], queue.DownloadOptions{Overwrite: overwrite})
			q.Logout()
			return s.run(cmd.Context(), q)
		},
	}
	tf.register(cmd, false)
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files without asking")
	return cmd
}

func newUploadCmd() *cobra.Command {
	var (
		tf        treeFlags
		overwrite bool
		hidden    bool
	)
	cmd := &cobra.Command{
		Use:   "upload <local> <remoteDir>",
		Short: "Upload local files or directories",
		Long: `Upload a local file or directory into a server directory. A directory is
created below the target; use -r to include its content.

Examples:
  fsi-client upload ./photo.jpg images/
  fsi-client upload ./summer -r images/ --exclude '.*'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := tf.options(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(cmd.OutOrStdout(), needLogin)
			if err != nil {
				return err
			}
			q := s.newQueueWithHidden(hidden)
			q.Login(s.cfg.User, s.cfg.Password)
			q.AddLocalPath(args[0], tf.recursive, opts)
			q.BatchUpload(args[1], queue.UploadOptions{Overwrite: overwrite})
			q.Logout()
			return s.run(cmd.Context(), q)
		},
	}
	tf.register(cmd, false)
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files without asking")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "Include hidden files")
	return cmd
}

// transferCmd builds copy and move, which only differ in the batch op.
func transferCmd(use, short string, add func(q *queue.Queue, target string, opts queue.CopyOptions)) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   use + " <remote> <targetDir>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.OutOrStdout(), needLogin)
			if err != nil {
				return err
			}
			q := s.loginQueue()
			q.AddServerPath(args[0], false, listing.Options{})
			add(q, models.NormalizeDir(args[1]), queue.CopyOptions{Overwrite: overwrite})
			q.Logout()
			return s.run(cmd.Context(), q)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing targets without asking")
	return cmd
}

func newCopyCmd() *cobra.Command {
	return transferCmd("copy", "Copy a file or directory on the server", (*queue.Queue).BatchCopy)
}

func newMoveCmd() *cobra.Command {
	return transferCmd("move", "Move a file or directory on the server", (*queue.Queue).BatchMove)
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <remote> <newName>",
		Short: "Rename a file or directory on the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.OutOrStdout(), needLogin)
			if err != nil {
				return err
			}
			q := s.loginQueue()
			q.AddServerPath(args[0], false, listing.Options{})
			q.BatchRename(func(*models.Entry) string { return args[1] })
			q.Logout()
			return s.run(cmd.Context(), q)
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var tf treeFlags
	cmd := &cobra.Command{
		Use:   "delete <remote>",
		Short: "Delete a file or directory on the server",
		Long: `Delete a server file or directory. With -r the content of a directory is
deleted entry by entry, deepest first; the filters then select what goes.
Asks for confirmation on a terminal unless --yes is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := tf.options(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(cmd.OutOrStdout(), needLogin)
			if err != nil {
				return err
			}
			if !flags.yes && isInteractive() {
				ok, err := s.prompter.confirm(cmd.Context(), fmt.Sprintf("Delete %s?", args[0]))
				if err != nil || !ok {
					return err
				}
			}
			q := s.loginQueue()
			q.AddServerPath(args[0], tf.recursive, opts)
			q.BatchDelete()
			q.Logout()
			return s.run(cmd.Context(), q)
		},
	}
	tf.register(cmd, false)
	return cmd
}

func newReimportCmd() *cobra.Command {
	var tf treeFlags
	cmd := &cobra.Command{
		Use:   "reimport <remote>",
		Short: "Re-import images on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := tf.options(args[0])
			if err != nil {
				return err
			}
			opts.TypeFilter = models.TypeFiles
			s, err := newSession(cmd.OutOrStdout(), needLogin)
			if err != nil {
				return err
			}
			q := s.loginQueue()
			q.AddServerPath(args[0], tf.recursive, opts)
			q.BatchReimport()
			q.Logout()
			return s.run(cmd.Context(), q)
		},
	}
	tf.register(cmd, false)
	return cmd
}

func newServiceCmd() *cobra.Command {
	var tf treeFlags
	cmd := &cobra.Command{
		Use:   "service <remote> <command>",
		Short: "Send a service command for a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := tf.options(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(cmd.OutOrStdout(), needLogin)
			if err != nil {
				return err
			}
			q := s.loginQueue()
			q.AddServerPath(args[0], tf.recursive, opts)
			q.BatchServiceCommand(args[1])
			q.Logout()
			return s.run(cmd.Context(), q)
		},
	}
	tf.register(cmd, false)
	return cmd
}
