package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neptunelabs/fsi-client/internal/models"
)

func newMetaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Read and edit image metadata",
	}
	cmd.AddCommand(newMetaGetCmd())
	cmd.AddCommand(newMetaSetCmd())
	cmd.AddCommand(newMetaDeleteCmd())
	return cmd
}

func newMetaGetCmd() *cobra.Command {
	var tf treeFlags
	cmd := &cobra.Command{
		Use:   "get <remote>",
		Short: "Print the metadata of files",
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
			q.BatchGetMetaData()
			q.Logout()
			runErr := s.run(cmd.Context(), q)
			printMetaData(s.out, q.BatchContent().Entries())
			return runErr
		},
	}
	tf.register(cmd, false)
	return cmd
}

func newMetaSetCmd() *cobra.Command {
	var tf treeFlags
	cmd := &cobra.Command{
		Use:   "set <remote> key=value...",
		Short: "Set metadata fields of files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := parseKeyValues(args[1:])
			if err != nil {
				return err
			}
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
			q.BatchSetMetaData(meta)
			q.Logout()
			return s.run(cmd.Context(), q)
		},
	}
	tf.register(cmd, false)
	return cmd
}

func newMetaDeleteCmd() *cobra.Command {
	var tf treeFlags
	cmd := &cobra.Command{
		Use:   "delete <remote> key...",
		Short: "Remove metadata fields from files",
		Args:  cobra.MinimumNArgs(2),
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
			q.BatchDeleteMetaData(args[1:])
			q.Logout()
			return s.run(cmd.Context(), q)
		},
	}
	tf.register(cmd, false)
	return cmd
}

// parseKeyValues parses key=value arguments. Values may contain '=' and may
// be empty; keys may not.
func parseKeyValues(args []string) (map[string]string, error) {
	meta := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected key=value", a)
		}
		meta[k] = v
	}
	return meta, nil
}

func printMetaData(w io.Writer, entries []*models.Entry) {
	for _, e := range entries {
		if e.MetaData == nil {
			continue
		}
		fmt.Fprintln(w, e.FullPath())
		keys := make([]string, 0, len(e.MetaData))
		for k := range e.MetaData {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, e.MetaData[k])
		}
	}
}
