package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/framecast/cmd"
	"github.com/smazurov/framecast/internal/api"
	"github.com/smazurov/framecast/internal/capture"
	"github.com/smazurov/framecast/internal/config"
	"github.com/smazurov/framecast/internal/events"
	"github.com/smazurov/framecast/internal/logging"
	"github.com/smazurov/framecast/internal/preview"
	"github.com/smazurov/framecast/internal/systemd"
	"github.com/smazurov/framecast/pkg/framecast"
	"github.com/spf13/cobra"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"framecast.toml"`

	// Channel settings
	Channel     string `help:"Channel name" short:"n" default:"framecast" toml:"channel.name" env:"CHANNEL_NAME"`
	ShmDir      string `help:"Directory holding the channel files" default:"/dev/shm" toml:"channel.dir" env:"CHANNEL_DIR"`
	Width       int    `help:"Frame width in pixels" default:"640" toml:"channel.width" env:"CHANNEL_WIDTH"`
	Height      int    `help:"Frame height in pixels" default:"480" toml:"channel.height" env:"CHANNEL_HEIGHT"`
	Format      string `help:"Pixel format (rgb24, bgr24, gray8, yuyv)" default:"rgb24" toml:"channel.format" env:"CHANNEL_FORMAT"`
	LockTimeout string `help:"How long to wait for the channel lock" default:"100ms" toml:"channel.lock_timeout" env:"CHANNEL_LOCK_TIMEOUT"`

	// Capture settings
	Source        string `help:"Frame source (pattern, file)" default:"pattern" toml:"capture.source" env:"CAPTURE_SOURCE"`
	SourceFile    string `help:"Raw frame file for the file source" default:"" toml:"capture.file" env:"CAPTURE_FILE"`
	FPS           int    `help:"Frames per second produced by the source" default:"30" toml:"capture.fps" env:"CAPTURE_FPS"`
	OnDemand      bool   `help:"Only run the source while clients are attached" default:"false" toml:"capture.on_demand" env:"CAPTURE_ON_DEMAND"`
	IdleFrames    int    `help:"Frames published without clients before the source stops" default:"30" toml:"capture.idle_frames" env:"CAPTURE_IDLE_FRAMES"`
	StatsInterval string `help:"Interval between publish stats events" default:"5s" toml:"capture.stats_interval" env:"CAPTURE_STATS_INTERVAL"`

	// Server settings
	Listen         string `help:"HTTP listen address, empty disables the API" short:"l" default:":8091" toml:"server.listen" env:"SERVER_LISTEN"`
	MetricsEnabled bool   `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"server.metrics" env:"SERVER_METRICS"`
	PreviewFPS     int    `help:"WebSocket preview frame rate, 0 disables the preview" default:"5" toml:"server.preview_fps" env:"SERVER_PREVIEW_FPS"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingFramecast string `help:"Channel logging level" default:"info" toml:"logging.framecast" env:"LOGGING_FRAMECAST"`
	LoggingCapture   string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// channelConfig builds the channel settings shared by the server and every
// client subcommand.
func (o *Options) channelConfig() (framecast.Config, error) {
	format, err := framecast.ParsePixelFormat(o.Format)
	if err != nil {
		return framecast.Config{}, err
	}
	lockTimeout, err := time.ParseDuration(o.LockTimeout)
	if err != nil {
		return framecast.Config{}, err
	}
	return framecast.Config{
		Channel: o.Channel,
		Dir:     o.ShmDir,
		Geometry: framecast.Geometry{
			Width:  uint32(o.Width),
			Height: uint32(o.Height),
			Format: format,
		},
		LockTimeout: lockTimeout,
		Logger:      logging.GetLogger("framecast").With("channel", o.Channel),
	}, nil
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"framecast": o.LoggingFramecast,
			"capture":   o.LoggingCapture,
			"api":       o.LoggingAPI,
		},
	}
}

func main() {
	var root *cobra.Command
	var channelCfg framecast.Config

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		loadErr := config.LoadConfig(opts, root)
		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")
		if loadErr != nil {
			logger.Warn("Failed to load config", "path", opts.Config, "error", loadErr)
		}

		cfg, err := opts.channelConfig()
		if err != nil {
			logger.Error("Invalid channel settings", "error", err)
			os.Exit(1)
		}
		channelCfg = cfg

		ctx, cancel := context.WithCancel(context.Background())
		finished := make(chan struct{})
		hooks.OnStart(func() {
			defer close(finished)
			defer cancel()
			run(ctx, cancel, opts, channelCfg, logger)
		})
		hooks.OnStop(func() {
			logger.Info("Shutting down")
			cancel()
			select {
			case <-finished:
			case <-time.After(10 * time.Second):
				logger.Error("Shutdown timed out")
			}
		})
	})
	root = cli.Root()
	root.Use = "framecast"
	root.Short = "Publish frames to local consumers over shared memory"

	channel := func() framecast.Config { return channelCfg }
	root.AddCommand(cmd.CreateWatchCmd(channel))
	root.AddCommand(cmd.CreateInfoCmd(channel))
	root.AddCommand(cmd.CreateTopCmd(channel))
	root.AddCommand(cmd.CreateServiceCmd())
	root.AddCommand(cmd.CreateUpdateCmd())

	cli.Run()
}

// run is the default command: own the channel, feed it from the source and
// serve the API until interrupted.
func run(ctx context.Context, stop context.CancelFunc, opts *Options, channelCfg framecast.Config, logger *slog.Logger) {
	notifier := systemd.NewNotifier(logging.GetLogger("systemd"))
	eventBus := events.New()
	defer events.ForwardLogs(eventBus)()

	statsInterval, err := time.ParseDuration(opts.StatsInterval)
	if err != nil {
		logger.Warn("Invalid stats interval, using default", "value", opts.StatsInterval, "error", err)
		statsInterval = 0
	}

	src, err := capture.NewSource(opts.Source, channelCfg.Geometry, float64(opts.FPS), opts.SourceFile)
	if err != nil {
		logger.Error("Invalid source", "error", err)
		os.Exit(1)
	}

	svc, err := capture.NewService(capture.Config{
		Channel:       channelCfg,
		OnDemand:      opts.OnDemand,
		IdleFrames:    opts.IdleFrames,
		StatsInterval: statsInterval,
		Ready: func() {
			notifier.Ready()
			notifier.Status("publishing %s on %s", channelCfg.Geometry, channelCfg.Channel)
		},
	}, src, eventBus, logging.GetLogger("capture"))
	if err != nil {
		logger.Error("Failed to create capture service", "error", err)
		os.Exit(1)
	}

	// Log level changes in the config file apply without a restart.
	watcher := config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logging.GetLogger("config"))
	watcher.OnReload(func(cfg logging.Config) {
		logging.SetLevels(cfg)
		logger.Info("Log levels reloaded", "level", cfg.Level, "modules", cfg.Modules)
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("Config watching disabled", "path", opts.Config, "error", err)
	}
	defer watcher.Stop()

	var server *api.Server
	if opts.Listen != "" {
		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Status:       svc,
			EventBus:     eventBus,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = promhttp.Handler()
		}
		if opts.PreviewFPS > 0 {
			hub := preview.NewHub(preview.Config{
				Channel: channelCfg,
				FPS:     float64(opts.PreviewFPS),
				Logger:  logging.GetLogger("preview"),
			})
			go hub.Run(ctx)
			apiOpts.Preview = hub
		}
		server = api.NewServer(apiOpts)

		go func() {
			if err := server.Start(opts.Listen); err != nil {
				logger.Error("HTTP server failed", "error", err)
				stop()
			}
		}()
	}

	runErr := svc.Run(ctx)
	notifier.Stopping()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error stopping HTTP server", "error", err)
		}
		cancel()
	}

	if runErr != nil {
		logger.Error("Capture stopped", "error", runErr)
		os.Exit(1)
	}
	logger.Info("Shut down cleanly", "channel", channelCfg.Channel)
}
