package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gainer-scanner/config"
	"gainer-scanner/internal/report"
	"gainer-scanner/internal/store/signallog"
	"gainer-scanner/internal/store/sqlite"
)

func historyCmd() *cobra.Command {
	var (
		limit  int
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show closed trades from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				dbPath = cfg.JournalPath
			}
			if dbPath == "" {
				return fmt.Errorf("no journal configured (set JOURNAL_PATH or --db)")
			}
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("journal %s: %w", dbPath, err)
			}

			j, err := sqlite.Open(sqlite.Config{DBPath: dbPath})
			if err != nil {
				return err
			}
			defer j.Close()

			trades, err := j.Trades(limit)
			if err != nil {
				return err
			}
			report.Trades(os.Stdout, trades)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of most recent trades")
	cmd.Flags().StringVar(&dbPath, "db", "", "Journal path (defaults to JOURNAL_PATH)")
	return cmd
}

func signalsCmd() *cobra.Command {
	var (
		limit int
		path  string
	)
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Show recent entries from the signal log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.SignalLogPath
			}

			signals, skipped, err := signallog.Read(path)
			if err != nil {
				return fmt.Errorf("signal log %s: %w", path, err)
			}
			if limit > 0 && len(signals) > limit {
				signals = signals[len(signals)-limit:]
			}
			report.Signals(os.Stdout, signals)
			if skipped > 0 {
				fmt.Fprintf(os.Stderr, "%d unreadable lines skipped\n", skipped)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of most recent signals")
	cmd.Flags().StringVar(&path, "file", "", "Signal log path (defaults to SIGNAL_LOG_PATH)")
	return cmd
}
