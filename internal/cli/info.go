package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/neptunelabs/fsi-client/internal/api"
	"github.com/neptunelabs/fsi-client/internal/version"
)

const infoTimeout = 15 * time.Second

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show server information",
		Long:  `Query the FSI Server for its version and properties. No login is needed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.OutOrStdout(), needServer)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), infoTimeout)
			defer cancel()

			info, err := s.client.ServerInfo(ctx)
			if err != nil {
				return fmt.Errorf("failed to query server: %w", err)
			}
			printServerInfo(s.out, s.cfg.BaseURL(), info)
			return nil
		},
	}
}

func printServerInfo(w io.Writer, url string, info api.ServerInfo) {
	fmt.Fprintf(w, "Server:  %s\n", url)
	if v := info.Version(); v != "" {
		fmt.Fprintf(w, "Version: %s\n", v)
	}
	keys := make([]string, 0, len(info))
	for k := range info {
		if k != "version" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, info[k])
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fsi-client %s\n", version.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Built:  %s\n", version.BuildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "Go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
