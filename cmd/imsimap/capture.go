package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/MaDonald/imsimap/internal/bus"
	"github.com/MaDonald/imsimap/internal/capture"
	"github.com/MaDonald/imsimap/internal/config"
	"github.com/MaDonald/imsimap/internal/cron"
	"github.com/MaDonald/imsimap/internal/session"
)

type captureFlags struct {
	profile   string
	frequency string
	gain      float64
	ppm       float64
	exportTo  string
	dumpDir   string
	noCommit  bool
	quiet     bool
}

func (f *captureFlags) register(cmd *cobra.Command, withParams bool) {
	if withParams {
		cmd.Flags().StringVar(&f.profile, "profile", "", "INI capture profile with a [params] section")
		cmd.Flags().StringVarP(&f.frequency, "frequency", "f", "", "Frequency in Hz, or with K/M suffix (943.2M)")
		cmd.Flags().Float64VarP(&f.gain, "gain", "g", 0, "Receiver gain")
		cmd.Flags().Float64Var(&f.ppm, "ppm", 0, "Frequency correction in ppm")
	}
	cmd.Flags().StringVar(&f.exportTo, "export", "", "Export the table to this .csv, .txt or .sqlite file when the run ends")
	cmd.Flags().StringVar(&f.dumpDir, "dump", "", "Write a flat-text dump of the run into this directory")
	cmd.Flags().BoolVar(&f.noCommit, "no-commit", false, "Do not store the run in the session store")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not echo decoder output")
}

// params resolves capture parameters: config, then profile, then flags.
func (f *captureFlags) params(cmd *cobra.Command, cfg *config.Config) (session.Params, error) {
	p := session.Params{
		Frequency: cfg.Capture.Frequency,
		Gain:      cfg.Capture.Gain,
		PPM:       cfg.Capture.PPM,
	}
	if f.profile != "" {
		prof, err := cfg.LoadProfile(f.profile)
		if err != nil {
			return session.Params{}, err
		}
		p = session.Params{Frequency: prof.Frequency, Gain: prof.Gain, PPM: prof.PPM}
	}
	if cmd.Flags().Changed("frequency") {
		hz, err := config.ParseFrequency(f.frequency)
		if err != nil {
			return session.Params{}, err
		}
		p.Frequency = hz
	}
	if cmd.Flags().Changed("gain") {
		p.Gain = f.gain
	}
	if cmd.Flags().Changed("ppm") {
		p.PPM = f.ppm
	}
	return p, config.ValidateFrequency(p.Frequency)
}

func newCaptureCmd(rf *rootFlags) *cobra.Command {
	f := &captureFlags{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run the decoder until it exits or is interrupted, then store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, rf)
			if err != nil {
				return err
			}
			p, err := f.params(cmd, a.cfg)
			if err != nil {
				return err
			}
			return runCapture(cmd.Context(), a, f, func(ctx context.Context, svc *capture.Service) (string, error) {
				return svc.Start(ctx, p)
			})
		},
	}
	f.register(cmd, true)
	return cmd
}

func newReplayCmd(rf *rootFlags) *cobra.Command {
	f := &captureFlags{}
	cmd := &cobra.Command{
		Use:   "replay <key>",
		Short: "Start a new capture with the parameters of a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, rf)
			if err != nil {
				return err
			}
			key := args[0]
			return runCapture(cmd.Context(), a, f, func(ctx context.Context, svc *capture.Service) (string, error) {
				return svc.Replay(ctx, key)
			})
		},
	}
	f.register(cmd, false)
	return cmd
}

type startFunc func(ctx context.Context, svc *capture.Service) (string, error)

func runCapture(ctx context.Context, a *app, f *captureFlags, start startFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	stopTimeout, err := a.cfg.StopTimeoutDuration()
	if err != nil {
		return err
	}
	if a.cfg.Capture.Checkpoint != "" {
		if err := cron.Validate(a.cfg.Capture.Checkpoint); err != nil {
			return err
		}
	}

	writer := session.NewWriter(a.store, a.log)
	defer writer.Close()

	out := &syncWriter{w: a.out}
	b := bus.NewMessageBus(256)
	if !f.quiet {
		b.Subscribe("stdout", func(ev bus.Event) {
			if ev.Kind == bus.EventLine {
				fmt.Fprintln(out, ev.Line)
			}
		})
	}
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		b.Dispatch(dispatchCtx)
	}()

	svc := capture.New(writer, capture.Options{
		Argv:        a.cfg.DecoderArgv(),
		Dir:         a.cfg.Decoder.WorkDir,
		StopTimeout: stopTimeout,
		Location:    loc,
		Checkpoint:  a.cfg.Capture.Checkpoint,
		Params: session.Params{
			Frequency: a.cfg.Capture.Frequency,
			Gain:      a.cfg.Capture.Gain,
			PPM:       a.cfg.Capture.PPM,
		},
		Bus: b,
	}, a.log)

	key, err := start(ctx, svc)
	if err != nil {
		stopDispatch()
		<-dispatched
		return err
	}
	fmt.Fprintf(out, "Capture %s started (%s)\n", key, strings.Join(svc.Argv(), " "))

	select {
	case <-svc.Done():
	case <-ctx.Done():
		a.log.Info().Msg("interrupted, stopping decoder")
	}
	stopErr := svc.Stop()
	stopDispatch()
	<-dispatched
	if stopErr != nil {
		a.log.Warn().Err(stopErr).Msg("stop decoder")
	}

	fmt.Fprintf(out, "Captured %d records\n", svc.Table().Len())

	// The run context may already be cancelled; storing must still happen.
	if !f.noCommit {
		if _, err := svc.Commit(context.Background()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Session saved: %s\n", key)
	}
	if f.exportTo != "" {
		if err := svc.Export(f.exportTo); err != nil {
			return fmt.Errorf("export table: %w", err)
		}
		fmt.Fprintf(out, "Table exported to %s\n", f.exportTo)
	}
	if f.dumpDir != "" {
		path, err := svc.DumpFile(f.dumpDir)
		if err != nil {
			return fmt.Errorf("dump session: %w", err)
		}
		fmt.Fprintf(out, "Session dumped to %s\n", path)
	}
	return nil
}

// syncWriter lets the bus subscriber and the command share stdout.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
