package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/lessonforge/internal/app"
	"github.com/yungbote/lessonforge/internal/data/db"
	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the in-process runner and the recovery sweeper",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			return a.Serve(ctx)
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker for outline runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			return a.RunWorker(ctx)
		})
	},
}

var processCmd = &cobra.Command{
	Use:   "process <outline-id>",
	Short: "Run or resume one outline request in the foreground and print its outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid outline id: %w", err)
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			out, err := a.Process(ctx, id)
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), out)
		})
	},
}

var submitTitle string

var submitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Create an outline request from a file (or stdin) and run it in the foreground",
	Long: `Create an outline request and run it to a terminal status.

Examples:
  lessonforge submit outline.txt
  echo "Teach the three primary colors to ages 5-6" | lessonforge submit -`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		text, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			req, err := a.Gateway.CreateOutlineRequest(ctx, submitTitle, string(text))
			if err != nil {
				return err
			}
			if _, err := a.Gateway.AppendStatus(ctx, types.EntityOutlineRequest, req.ID, types.StatusSubmitted,
				orchestrator.SubmittedMeta{Title: req.Title}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "outline request %s submitted\n", req.ID)
			out, err := a.Process(ctx, req.ID)
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), out)
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()
		pg, err := db.NewPostgresService(log, cfg.Postgres.DB())
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.AutoMigrateAll(); err != nil {
			return err
		}
		log.Info("Migration complete")
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitTitle, "title", "", "request title (defaults to the first outline line)")
}

func printOutcome(w io.Writer, out orchestrator.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
