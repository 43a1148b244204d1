package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/georgeshao/fleetctx/internal/app"
	"github.com/georgeshao/fleetctx/internal/config"
	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/pkg/types"
)

var (
	configPath   string // YAML config file
	databasePath string // Overrides the configured database path
	logLevel     string // Log verbosity level

	opArgs     string // JSON argument object for `op`
	maxRows    int    // Row cap for `sql`
	auditLimit int    // Entries shown by `audit`
	jsonOutput bool   // Print the full session for `ask`
)

var rootCmd = &cobra.Command{
	Use:          "fleetctx",
	Short:        "Read-only operational context for an LLM serving fleet",
	SilenceUsage: true,
}

var opCmd = &cobra.Command{
	Use:   "op <name>",
	Short: "Run one catalog operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			raw := json.RawMessage(opArgs)
			if !json.Valid(raw) {
				return fmt.Errorf("--args is not valid JSON")
			}
			out, err := a.Dispatcher.Invoke(ctx, args[0], raw)
			if err != nil {
				return describe(err)
			}
			return printJSON(cmd, out)
		})
	},
}

var sqlCmd = &cobra.Command{
	Use:   "sql <query>",
	Short: "Run a read-only SQL statement through the audited gate",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			q := types.SQLQueryArgs{Query: strings.Join(args, " ")}
			if maxRows > 0 {
				q.MaxRows = &maxRows
			}
			raw, err := json.Marshal(q)
			if err != nil {
				return err
			}
			out, err := a.Dispatcher.Invoke(ctx, config.OpSafeSQL, raw)
			if err != nil {
				return describe(err)
			}
			return printJSON(cmd, out)
		})
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the available operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			for _, spec := range a.Catalog.Specs() {
				params := make([]string, 0, len(spec.Params))
				for _, p := range spec.Params {
					name := p.Name
					if p.Required {
						name += "*"
					}
					params = append(params, name)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s ttl=%-4ds %s\n    params: %s\n",
					spec.Name, spec.TTLSeconds, spec.Description, strings.Join(params, ", "))
			}
			return nil
		})
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent ad-hoc query audit entries (needs a durable audit path)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if a.Settings.AuditPath == "" && a.Settings.AuditJSONL == "" {
				logrus.Warn("no durable audit log configured; only entries from this process are visible")
			}
			entries, err := a.Audit.List(ctx, auditLimit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s rows=%-4d %4dms  %s\n",
					e.Timestamp, e.Outcome, e.RowCount, e.DurationMs, e.Normalized)
				if e.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "    error: %s\n", e.Error)
				}
			}
			return nil
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question with the planning loop (needs a planner URL)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if !a.Dispatcher.HasPlanner() {
				return fmt.Errorf("no planner configured; set FLEETCTX_PLANNER_URL")
			}
			res := a.Dispatcher.Run(ctx, strings.Join(args, " "))
			if jsonOutput {
				raw, err := json.Marshal(res)
				if err != nil {
					return err
				}
				return printJSON(cmd, raw)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
			fmt.Fprintf(cmd.OutOrStdout(), "\n[%s after %d steps; tools: %s]\n",
				res.Outcome, res.Steps, strings.Join(res.ToolsUsed, ", "))
			if res.Outcome == types.OutcomeError {
				return fmt.Errorf("session failed: %s", res.Error)
			}
			return nil
		})
	},
}

// withApp loads settings, builds the component graph and runs fn with a
// context cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if databasePath != "" {
		settings.DatabasePath = databasePath
	}
	if logLevel != "" {
		settings.LogLevel = logLevel
	}

	logger, err := app.NewLogger(settings.LogLevel)
	if err != nil {
		return err
	}
	logger.SetOutput(cmd.ErrOrStderr())

	a, err := app.New(settings, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, a)
}

func describe(err error) error {
	kind := opserr.KindOf(err)
	if kind == "" {
		return err
	}
	return fmt.Errorf("%s: %s", kind, opserr.Message(err))
}

func printJSON(cmd *cobra.Command, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(cmd.OutOrStdout())
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("FLEETCTX_CONFIG"), "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&databasePath, "db", "", "Path to the operational SQLite database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "Log level (trace, debug, info, warn, error)")

	opCmd.Flags().StringVar(&opArgs, "args", "{}", "JSON object of operation arguments")
	sqlCmd.Flags().IntVar(&maxRows, "max-rows", 0, "Row cap below the configured ceiling")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Number of entries to show")
	askCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full session result as JSON")

	rootCmd.AddCommand(opCmd, sqlCmd, catalogCmd, auditCmd, askCmd)
}
