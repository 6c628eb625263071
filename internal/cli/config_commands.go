package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neptunelabs/fsi-client/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fsi-client configuration",
		Long: `Configuration management commands for fsi-client.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns the --config path or the default one.
func configPath() string {
	if flags.configFile != "" {
		return flags.configFile
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for fsi-client.

The password is not stored; it is asked for on each run unless FSI_PASSWORD
is set. Use --force to overwrite an existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at: %s\n", path)
					fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}
			cfg, err := initConfig(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := config.Save(cfg, path, false); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(cmd.OutOrStdout(), "\nConfiguration saved to: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// initConfig asks for the settings of a new configuration.
func initConfig(in io.Reader, out io.Writer) (*config.Config, error) {
	reader := bufio.NewReader(in)
	ask := func(label, def string) string {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, def)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}
		line, _ := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line == "" {
			return def
		}
		return line
	}

	cfg := config.New()
	fmt.Fprintln(out, "FSI Server Configuration Setup")
	fmt.Fprintln(out, "==============================")
	fmt.Fprintln(out)

	cfg.ServerURL = ask("Server URL (required)", "")
	if cfg.ServerURL == "" {
		return nil, config.ErrMissingServerURL
	}
	cfg.User = ask("User", "")
	cfg.Language = ask("Language", "en")

	if p := strings.ToLower(ask("Configure proxy? (y/n)", "n")); p == "y" || p == "yes" {
		fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
		cfg.ProxyMode = ask("Proxy mode", "system")
		if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
			cfg.ProxyHost = ask("Proxy host", "")
			port, err := strconv.Atoi(ask("Proxy port", "8080"))
			if err != nil || port <= 0 {
				return nil, fmt.Errorf("invalid proxy port")
			}
			cfg.ProxyPort = port
			cfg.ProxyUser = ask("Proxy user", "")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (config.ini)
  2. Environment variables (FSI_SERVER, FSI_USER, ...)
  3. Command-line flags (--server, --user, ...)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(&flags)
			if err != nil {
				return err
			}
			showConfig(cmd.OutOrStdout(), cfg, configPath())
			return nil
		},
	}
}

func showConfig(w io.Writer, cfg *config.Config, path string) {
	fmt.Fprintln(w, "Server Settings:")
	fmt.Fprintf(w, "  URL:      %s\n", cfg.ServerURL)
	fmt.Fprintf(w, "  User:     %s\n", cfg.User)
	fmt.Fprintf(w, "  Password: %s\n", maskSecret(cfg.Password))
	fmt.Fprintf(w, "  Language: %s\n", cfg.Language)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy Settings:")
	fmt.Fprintf(w, "  Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Host: %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
		fmt.Fprintf(w, "  User: %s\n", cfg.ProxyUser)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Transfer Settings:")
	fmt.Fprintf(w, "  Max Retries:         %d\n", cfg.MaxRetries)
	fmt.Fprintf(w, "  Requests per second: %g\n", cfg.RequestsPerSecond)
	fmt.Fprintf(w, "  Continue on error:   %t\n", cfg.ContinueOnError)
	if cfg.MaxRecursiveDepth > 0 {
		fmt.Fprintf(w, "  Max recursive depth: %d\n", cfg.MaxRecursiveDepth)
	}
	if cfg.S3Region != "" || cfg.S3Endpoint != "" {
		fmt.Fprintf(w, "  S3:                  %s %s\n", cfg.S3Region, cfg.S3Endpoint)
		fmt.Fprintf(w, "  S3 Secret Key:       %s\n", maskSecret(cfg.S3SecretKey))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(w, "  (file does not exist - using defaults)")
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			fmt.Fprintln(cmd.OutOrStdout(), path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "  (file does not exist)")
			}
			return nil
		},
	}
}
