// Package cli implements the identd command line: the server plus operator
// commands that issue and look up identities directly against the store.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"identd/cmd/identity"
	"identd/cmd/identity/sqlitestore"
	"identd/cmd/internal/app"
	"identd/cmd/internal/issuance"
	"identd/cmd/security/accesskey"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel  string
	LogFormat string

	// loadConfig is swapped in tests.
	loadConfig func() (app.Config, error)
}

// NewRootCommand creates the root command for the identd CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{loadConfig: app.LoadConfig})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "identd",
		Short:         "identd issues and looks up access-key identities",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format override (json|pretty)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newKeygenCommand())
	cmd.AddCommand(newCreateCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newLookupCommand(opts))

	return cmd
}

func (o *RootOptions) config() (app.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return app.Config{}, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.LogFormat = o.LogFormat
	}
	return cfg, cfg.Validate()
}

func newServeCommand(opts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return app.Run(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address override")
	return cmd
}

func newKeygenCommand() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print freshly generated access keys without storing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			gen := accesskey.NewGenerator(nil)
			for i := 0; i < count; i++ {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), gen.Generate()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of keys")
	return cmd
}

func newCreateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Issue a new identity and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, opts, func(svc *issuance.Service) error {
				out, err := svc.Issue(cmd.Context())
				if err != nil {
					return err
				}
				return printIdentity(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print the identity with the given id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("id must be an integer: %w", err)
			}
			return withService(cmd, opts, func(svc *issuance.Service) error {
				out, err := svc.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printIdentity(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newLookupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <access-key>",
		Short: "Print the identity owning the access key (exact match)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(svc *issuance.Service) error {
				out, err := svc.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printIdentity(cmd.OutOrStdout(), out)
			})
		},
	}
}

// errMemoryStore rejects the in-memory default: anything written would vanish
// when the command exits.
var errMemoryStore = errors.New("no persistent store configured: set IDENTD_DATABASE_URL or IDENTD_SQLITE_PATH to a file")

// withService opens the configured store for the duration of fn. Logs go to
// stderr at warn level unless --log-level says otherwise.
func withService(cmd *cobra.Command, opts *RootOptions, fn func(*issuance.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := opts.config()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" && cfg.SQLitePath == sqlitestore.MemoryPath {
		return errMemoryStore
	}
	level := opts.LogLevel
	if level == "" {
		level = "warn"
	}
	log := app.NewLoggerTo(cmd.ErrOrStderr(), level, cfg.LogFormat)

	st, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := issuance.NewService(st, issuance.Config{MaxAttempts: cfg.IssueMaxAttempts}, issuance.WithLogger(log))
	if err != nil {
		return err
	}
	return fn(svc)
}

func printIdentity(w io.Writer, in identity.Identity) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		ID        int64  `json:"id"`
		AccessKey string `json:"access_key"`
		CreatedAt string `json:"created_at"`
	}{
		ID:        in.ID,
		AccessKey: in.AccessKey,
		CreatedAt: in.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}
