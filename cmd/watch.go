package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/framecast/internal/logging"
	"github.com/smazurov/framecast/pkg/framecast"
	"github.com/spf13/cobra"
)

// CreateWatchCmd creates the watch command, a reference consumer that
// attaches to the channel and reports what it receives.
func CreateWatchCmd(channel ChannelConfig) *cobra.Command {
	var duration time.Duration
	var retry time.Duration
	var report time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Attach to a channel and report received frames",
		Long: `Connects to the channel as a client, reads every frame it is woken for and logs ` +
			`the receive rate and skipped frames. Reconnects when the producer goes away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			w := &frameWatcher{
				cfg:    channel(),
				retry:  retry,
				report: report,
				logger: logging.GetLogger("watch"),
			}
			stats, err := w.run(ctx)
			w.logger.Info("Watch finished",
				"frames", stats.Frames,
				"skipped", stats.Skipped,
				"truncated", stats.Truncated,
				"connects", stats.Connects)
			return err
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().DurationVar(&retry, "retry", time.Second, "Delay between connection attempts")
	cmd.Flags().DurationVar(&report, "report", time.Second, "Interval between rate reports")
	return cmd
}

type watchStats struct {
	Frames    uint64
	Skipped   uint64
	Truncated uint64
	Connects  int
}

type frameWatcher struct {
	cfg    framecast.Config
	retry  time.Duration
	report time.Duration
	logger *slog.Logger
}

// run reads frames until ctx is done. Losing the producer is not an error;
// the watcher waits for a new one.
func (w *frameWatcher) run(ctx context.Context) (watchStats, error) {
	var stats watchStats
	client, err := framecast.NewClient(w.cfg)
	if err != nil {
		return stats, err
	}
	defer client.Disconnect()

	var buf []byte
	var lastNumber uint64
	var windowFrames uint64
	windowStart := time.Now()

	for ctx.Err() == nil {
		if !client.IsConnected() {
			if err := client.Connect(); err != nil {
				if !framecast.IsRetryable(err) {
					return stats, err
				}
				w.logger.Debug("Channel not available", "channel", w.cfg.Channel, "error", err)
				sleepCtx(ctx, w.retry)
				continue
			}
			info, err := client.FrameInfo()
			if err != nil {
				continue
			}
			buf = make([]byte, info.Capacity)
			// Frames published before we attached are not skips.
			lastNumber = info.FrameNumber
			stats.Connects++
			w.logger.Info("Connected", "channel", w.cfg.Channel, "geometry", info.Geometry.String(), "clients", info.ClientCount)
		}

		if client.WaitForFrame(w.retry) {
			frame, err := client.ReadFrame(buf)
			switch {
			case err == nil, errors.Is(err, framecast.ErrBufferTooSmall):
				if frame.Truncated() {
					stats.Truncated++
				}
				if frame.Number > lastNumber+1 {
					stats.Skipped += frame.Number - lastNumber - 1
				}
				lastNumber = frame.Number
				stats.Frames++
				windowFrames++
			case errors.Is(err, framecast.ErrNoNewFrame):
			case errors.Is(err, framecast.ErrStaleServer):
				w.logger.Warn("Producer went away", "channel", w.cfg.Channel)
				client.Disconnect()
				continue
			default:
				w.logger.Warn("Read failed", "error", err)
			}
		} else if !client.ServerAlive() {
			w.logger.Warn("Producer went away", "channel", w.cfg.Channel)
			client.Disconnect()
			continue
		}

		if elapsed := time.Since(windowStart); elapsed >= w.report {
			w.logger.Info("Receiving",
				"fps", float64(windowFrames)/elapsed.Seconds(),
				"frame", lastNumber,
				"skipped", stats.Skipped)
			windowFrames = 0
			windowStart = time.Now()
		}
	}
	return stats, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
