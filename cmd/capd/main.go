package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sandeepkv93/capd/internal/client"
	"github.com/sandeepkv93/capd/internal/config"
	"github.com/sandeepkv93/capd/internal/notify"
	"github.com/sandeepkv93/capd/internal/queue"
	"github.com/sandeepkv93/capd/internal/server"
	"github.com/sandeepkv93/capd/internal/storage"
	"github.com/sandeepkv93/capd/internal/syncer"
	"github.com/sandeepkv93/capd/internal/update"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "capd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "capd",
		Short:         "personal capture hub",
		Long:          "capd captures free-form thoughts, classifies them into notes and tasks, and keeps working offline.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newUICmd(),
		newCaptureCmd(),
		newSyncCmd(),
		newQueueCmd(),
		newExportCmd(),
		newImportCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the capture server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := os.MkdirAll(filepath.Dir(cfg.ServerDBPath), 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			repo, err := storage.OpenSQLite(cfg.ServerDBPath)
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()
			if err := storage.MigrateUp(repo.DB()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			notifier := notify.New(repo, logger, cfg.NtfyServer, cfg.NtfyTopic, cfg.NotifyInterval)
			notifier.Start()
			defer notifier.Stop()

			srv := server.New(repo, logger, server.Options{
				AuthToken:         cfg.AuthToken,
				RecurrenceHardCap: cfg.RecurrenceHardCap,
			})
			return srv.Run(cfg.ListenAddr)
		},
	}
}

func newUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "run the capture TUI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			api, store, err := openClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			coord := syncer.New(store, api)
			coord.Start()
			defer coord.Stop()
			coord.SetOnline(true)

			program := tea.NewProgram(update.New(api, coord))
			_, err = program.Run()
			return err
		},
	}
}

func newCaptureCmd() *cobra.Command {
	var rule string
	cmd := &cobra.Command{
		Use:   "capture <text>",
		Short: "capture one thought from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			api, store, err := openClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			_, offset := time.Now().Zone()
			rec, queued, err := api.Capture(cmd.Context(), client.CaptureRequest{
				Text:            strings.Join(args, " "),
				ClientTimestamp: time.Now().UTC(),
				TzOffsetMinutes: offset / 60,
				RecurrenceRule:  rule,
			})
			if err != nil {
				return err
			}
			if queued {
				fmt.Println("server unreachable: capture queued for sync")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVar(&rule, "rule", "", "recurrence rule, e.g. FREQ=WEEKLY;INTERVAL=2")
	return cmd
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "replay queued writes against the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			api, store, err := openClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			res, err := store.ReplayAll(cmd.Context(), api)
			if err != nil {
				return err
			}
			fmt.Printf("sync: %d delivered, %d still queued\n", res.Succeeded, res.StillQueued)
			return nil
		},
	}
}

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "show queued offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg.ClientDBPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("queue is empty")
				return nil
			}
			for _, entry := range entries {
				fmt.Printf("#%d %s %s enqueued=%s attempts=%d\n",
					entry.LocalID, entry.Method, entry.TargetPath,
					entry.EnqueuedAt.Format(time.RFC3339), entry.Attempts)
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "export every record as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			api, store, err := openClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			data, err := api.Export(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" {
				return printJSON(cmd.OutOrStdout(), data)
			}
			raw, err := json.MarshalIndent(data, "", "  ")
			if err != nil {
				return err
			}
			return os.WriteFile(out, append(raw, '\n'), 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the export to a file instead of stdout")
	return cmd
}

func newImportCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "import records from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			api, store, err := openClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var data client.ExportData
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("parse export file: %w", err)
			}
			summary, err := api.Import(cmd.Context(), data, overwrite)
			if err != nil {
				return err
			}
			fmt.Printf("import: %d inserted, %d updated, %d skipped, %d failed\n",
				summary.Inserted, summary.Updated, summary.Skipped, summary.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "update records whose ids already exist")
	return cmd
}

func openClient(cfg config.Config) (*client.Client, *queue.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.ClientDBPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := queue.Open(cfg.ClientDBPath)
	if err != nil {
		return nil, nil, err
	}
	return client.New(cfg.ServerURL, cfg.AuthToken, store), store, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
