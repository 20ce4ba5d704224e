package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/DukeRupert/lexassist/internal"
	"github.com/DukeRupert/lexassist/internal/domain"
	"github.com/DukeRupert/lexassist/internal/repository"
	"github.com/DukeRupert/lexassist/internal/service"
)

// env bundles what a subcommand needs once the database is open.
type env struct {
	db       *sql.DB
	services *service.Services
	close    func()
}

// opener connects to the database and wires the services.
type opener func(ctx context.Context) (*env, error)

func openServices(ctx context.Context) (*env, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	services := service.New(repository.NewStore(db), service.Options{
		Retry: service.RetryPolicy{
			Attempts:  cfg.StoreRetryAttempts,
			BaseDelay: cfg.StoreRetryBaseDelay,
		},
	}, logger)

	return &env{db: db, services: services, close: func() { db.Close() }}, nil
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "accessctl",
		Short:        "Operate the Lex Assist access gate",
		SilenceUsage: true,
	}

	root.AddCommand(
		newMigrateCmd(open),
		newTiersCmd(open),
		newCheckCmd(open),
		newUsageCmd(open),
	)
	return root
}

// =============================================================================
// migrate
// =============================================================================

func newMigrateCmd(open opener) *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			if err := internal.RunMigrationsContext(cmd.Context(), e.db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied state of every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			return internal.MigrationStatus(cmd.Context(), e.db)
		},
	})
	return migrate
}

// =============================================================================
// tiers
// =============================================================================

func newTiersCmd(open opener) *cobra.Command {
	tiers := &cobra.Command{
		Use:   "tiers",
		Short: "Inspect subscription tiers",
	}

	tiers.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every tier with its quotas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			list, err := e.services.Catalog.ListTiers(cmd.Context())
			if err != nil {
				return describe(err)
			}
			return printTiers(cmd.OutOrStdout(), list)
		},
	})
	return tiers
}

func printTiers(w io.Writer, tiers []domain.Tier) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPRICE\tSEARCHES/DAY\tLAW SECTIONS\tCASE HISTORIES\tFORMATS")
	for i := range tiers {
		t := &tiers[i]
		formats := make([]string, len(t.DocumentFormats))
		for j, f := range t.DocumentFormats {
			formats[j] = string(f)
		}
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\t%s\t%s\n",
			t.Name, t.Currency, t.DisplayPrice(),
			limitString(t.MaxSearchesPerDay),
			limitString(t.MaxLawSections),
			limitString(t.MaxCaseHistories),
			strings.Join(formats, ","))
	}
	return tw.Flush()
}

func limitString(v int) string {
	if v == domain.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", v)
}

// =============================================================================
// check
// =============================================================================

func newCheckCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "check <identity> <capability>",
		Short: "Evaluate one capability for an identity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid identity %q: %w", args[0], err)
			}

			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			d, err := e.services.Gate.CheckAccess(cmd.Context(), userID, domain.ParseCapability(args[1]))
			if err != nil {
				return describe(err)
			}
			printDecision(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

func printDecision(w io.Writer, d domain.AccessDecision) {
	verdict := "denied"
	if d.Allowed {
		verdict = "allowed"
	}
	fmt.Fprintf(w, "%s: %s (%s)\n", d.Capability, verdict, d.Reason)
	fmt.Fprintf(w, "role=%s tier=%s source=%s\n", d.Role, d.Tier, d.TierSource)
	if d.Window != nil {
		fmt.Fprintf(w, "used=%d limit=%s\n", d.Used, limitString(d.Limit))
	}
	if d.MaxItems != domain.Unlimited {
		fmt.Fprintf(w, "max_items=%d\n", d.MaxItems)
	}
}

// =============================================================================
// usage
// =============================================================================

func newUsageCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "usage <identity>",
		Short: "Show today's usage for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid identity %q: %w", args[0], err)
			}

			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			s, err := e.services.Usage.Summary(cmd.Context(), userID)
			if err != nil {
				return describe(err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "window %s to %s\n", s.Window.Start.Format("2006-01-02 15:04 MST"), s.Window.End.Format("2006-01-02 15:04 MST"))
			for _, a := range domain.KnownActions {
				fmt.Fprintf(w, "%-16s %d\n", a, s.Counts[a])
			}
			fmt.Fprintf(w, "remaining searches: %s\n", limitString(s.Remaining()))
			return nil
		},
	}
}

// describe turns a domain error into a one-line message for the terminal.
func describe(err error) error {
	return fmt.Errorf("%s: %w", domain.ErrorCode(err), err)
}
