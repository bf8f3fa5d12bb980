package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"notioncal/internal/cache"
	"notioncal/internal/config"
	"notioncal/internal/ics"
	appLog "notioncal/internal/log"
	"notioncal/internal/scheduler"
	"notioncal/internal/web"
)

const version = "0.1.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "notioncal",
		Short:         "Serve a Notion database as an iCalendar feed",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/notioncal/config.yaml", "path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(configCmd())

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		appLog.Error("notioncal failed", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration and applies the log
// settings. Commands that talk to Notion need validate=true.
func loadConfig(validate bool) (*config.Config, error) {
	if _, err := maxprocs.Set(); err != nil {
		return nil, fmt.Errorf("set GOMAXPROCS: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	appLog.Configure(cfg.LogLevel, cfg.Environment)

	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Refresh on a schedule and serve the feed (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a := newApp(cfg)
	appLog.Info("notioncal starting",
		"version", version,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"refresh", cfg.RefreshCron,
		"cache_path", a.feed.Path(),
		"workers", cfg.Workers,
	)

	sched := scheduler.New(a.engine, a.feed, cfg.RefreshCron, cfg.RefreshTimeout, cfg.Location())

	// A failed first refresh is not fatal; the server answers 503 until a
	// scheduled pass succeeds.
	_ = sched.EnsureFeed(ctx)

	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	err = web.NewServer(cfg, a.feed).ListenAndServe(ctx)
	appLog.Info("notioncal exiting")
	return err
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh pass and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RefreshTimeout)
			defer cancel()

			a := newApp(cfg)
			doc, err := a.engine.Refresh(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d events to %s\n", doc.Events, a.feed.Path())
			return nil
		},
	}
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the events of the cached feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}

			body, err := cache.NewFile(cfg.CachePath).ReadAll()
			if errors.Is(err, cache.ErrEmpty) {
				return fmt.Errorf("no feed at %s; run \"notioncal refresh\" first", cfg.CachePath)
			}
			if err != nil {
				return err
			}

			feed, err := ics.ParseFeed([]byte(body))
			if err != nil {
				return err
			}
			printFeed(cmd, feed)
			return nil
		},
	}
}

func printFeed(cmd *cobra.Command, feed ics.Feed) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s), %d events\n", feed.Name, feed.Timezone, len(feed.Events))
	for _, ev := range feed.Events {
		fmt.Fprintf(out, "  DTSTART%-24s DTEND%-24s %s\n",
			ics.FormatStamp(ev.Start), ics.FormatStamp(ev.End), ev.Summary)
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			if err := config.Save(configPath, config.DefaultConfig()); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
