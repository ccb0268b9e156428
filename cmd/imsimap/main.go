package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MaDonald/imsimap/internal/config"
	"github.com/MaDonald/imsimap/internal/session"
)

type rootFlags struct {
	logLevel string
	jsonLogs bool
}

func newRootCmd() *cobra.Command {
	rf := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "imsimap",
		Short:         "imsimap - IMSI capture sessions on top of a GSM decoder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&rf.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to IMSIMAP_LOG_LEVEL or info")
	rootCmd.PersistentFlags().BoolVar(&rf.jsonLogs, "json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(
		newCaptureCmd(rf),
		newReplayCmd(rf),
		newSessionsCmd(rf),
		newLogCmd(rf),
		newTableCmd(rf),
		newExportCmd(rf),
		newDumpCmd(rf),
		newPresetsCmd(rf),
		newStatusCmd(rf),
		newInitCmd(rf),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles what every command needs after config has been loaded.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	store *session.Store
	out   io.Writer
}

func loadApp(cmd *cobra.Command, rf *rootFlags) (*app, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), rf)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &app{
		cfg:   cfg,
		log:   logger,
		store: session.NewStore(cfg.DataPath(session.DefaultFile)),
		out:   cmd.OutOrStdout(),
	}, nil
}

func newLogger(w io.Writer, rf *rootFlags) (zerolog.Logger, error) {
	level := rf.logLevel
	if level == "" {
		level = os.Getenv("IMSIMAP_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
	}
	sw := zerolog.SyncWriter(w)
	if rf.jsonLogs {
		return zerolog.New(sw).Level(lvl).With().Timestamp().Logger(), nil
	}
	cw := zerolog.ConsoleWriter{Out: sw, TimeFormat: time.TimeOnly, NoColor: true}
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger(), nil
}

func newInitCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config and create the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, rf)
			if err != nil {
				return err
			}
			return runInit(a)
		},
	}
}

func runInit(a *app) error {
	cfgPath := config.ConfigPath()
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(a.out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(a.out, "Config already exists: %s\n", cfgPath)
	}

	dataDir := filepath.Dir(a.store.Path())
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	fmt.Fprintf(a.out, "Sessions will be stored in %s\n", a.store.Path())
	fmt.Fprintf(a.out, "Decoder: %s\n", strings.Join(a.cfg.DecoderArgv(), " "))
	return nil
}

func newStatusCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and the decoder command line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, rf)
			if err != nil {
				return err
			}
			return runStatus(a)
		},
	}
}

func runStatus(a *app) error {
	fmt.Fprintf(a.out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(a.out, "Decoder: %s\n", strings.Join(a.cfg.DecoderArgv(), " "))
	if a.cfg.Decoder.WorkDir != "" {
		fmt.Fprintf(a.out, "Work dir: %s\n", a.cfg.Decoder.WorkDir)
	}
	fmt.Fprintf(a.out, "Frequency: %s\n", formatHz(a.cfg.Capture.Frequency))
	fmt.Fprintf(a.out, "Gain: %s\n", session.FormatValue(a.cfg.Capture.Gain))
	fmt.Fprintf(a.out, "PPM: %s\n", session.FormatValue(a.cfg.Capture.PPM))
	fmt.Fprintf(a.out, "Time zone: %s\n", a.cfg.Capture.TimeZone)
	if a.cfg.Capture.Checkpoint != "" {
		fmt.Fprintf(a.out, "Checkpoints: %s\n", a.cfg.Capture.Checkpoint)
	} else {
		fmt.Fprintln(a.out, "Checkpoints: disabled")
	}
	fmt.Fprintf(a.out, "Stop timeout: %s\n", a.cfg.Capture.StopTimeout)

	doc, err := a.store.Load()
	if err != nil {
		fmt.Fprintf(a.out, "Sessions: error (%v)\n", err)
		return nil
	}
	fmt.Fprintf(a.out, "Sessions: %d in %s\n", len(doc), a.store.Path())
	return nil
}
