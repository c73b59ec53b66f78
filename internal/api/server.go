package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/framecast/internal/api/models"
	"github.com/smazurov/framecast/internal/capture"
	"github.com/smazurov/framecast/internal/events"
	"github.com/smazurov/framecast/internal/logging"
	"github.com/smazurov/framecast/internal/version"
)

// StatusProvider is implemented by *capture.Service.
type StatusProvider interface {
	Status() capture.Status
}

// Options configures the status API.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Status            StatusProvider
	EventBus          *events.Bus
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
	Preview           http.Handler // Optional WebSocket JPEG preview
}

// Server exposes channel status, logs and live events over HTTP.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	status     StatusProvider
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer builds the Huma API on a standard library mux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("Framecast API", version.String())
	config.Info.Description = "Status and live events for a shared-memory frame channel"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		status:   opts.Status,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(basicAuthMiddleware(api, opts.AuthUsername, opts.AuthPassword))
	}

	// Scrapers don't authenticate.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	if opts.Preview != nil {
		preview := opts.Preview
		if opts.AuthUsername != "" && opts.AuthPassword != "" {
			preview = requireAuth(opts.AuthUsername, opts.AuthPassword, preview)
		}
		mux.Handle("GET /api/preview", preview)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests. Open SSE streams end when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Reports 503 while the channel is not live",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // Empty security = no auth required
		Errors:      []int{503},
	}, func(ctx context.Context, _ *struct{}) (*models.HealthResponse, error) {
		st := s.status.Status()
		if !st.Running {
			return nil, huma.Error503ServiceUnavailable("channel " + st.Channel + " is not live")
		}
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "channel " + st.Channel + " is live",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Channel Status",
		Description: "Geometry, counters and client count of the published channel",
		Tags:        []string{"channel"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.StatusResponse, error) {
		return &models.StatusResponse{Body: s.status.Status()}, nil
	})

	s.registerLogRoutes()
	s.registerSSERoutes()
	s.registerStatsRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
