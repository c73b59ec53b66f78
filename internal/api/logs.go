package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/framecast/internal/api/models"
	"github.com/smazurov/framecast/internal/events"
	"github.com/smazurov/framecast/internal/logging"
)

// registerLogRoutes registers log history, live log streaming and runtime
// level control.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Recent log entries from the in-memory history",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *models.LogsInput) (*models.LogsResponse, error) {
		entries := filterEntries(recentEntries(0), input.Level, input.Module)
		if input.Limit > 0 && len(entries) > input.Limit {
			entries = entries[len(entries)-input.Limit:]
		}
		if entries == nil {
			entries = []logging.Entry{}
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: entries, Count: len(entries)},
		}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Sends the log history first, then new entries as they are written",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		for _, e := range recentEntries(0) {
			if err := send.Data(events.LogEntryEvent{
				Timestamp: e.Time.UTC().Format(time.RFC3339Nano),
				Level:     e.Level,
				Module:    e.Module,
				Message:   e.Message,
				Attrs:     e.Attrs,
			}); err != nil {
				return
			}
		}
		s.streamEvents(ctx, send, 100, subscription[events.LogEntryEvent](s.eventBus))
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logging",
		Summary:     "Log Levels",
		Description: "Effective log level of every module",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.LogLevelsResponse, error) {
		return &models.LogLevelsResponse{
			Body: models.LogLevelsData{Levels: logging.Levels()},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-levels",
		Method:      http.MethodPut,
		Path:        "/api/logging",
		Summary:     "Set Log Levels",
		Description: "Replace the global level and module overrides until the next config reload",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(ctx context.Context, input *models.SetLogLevelsInput) (*models.LogLevelsResponse, error) {
		for module, level := range input.Body.Modules {
			if !logging.ValidLevel(level) {
				return nil, huma.Error400BadRequest("invalid level " + level + " for module " + module)
			}
		}
		logging.SetLevels(logging.Config{
			Level:   input.Body.Level,
			Modules: input.Body.Modules,
		})
		s.logger.Info("Log levels changed", "level", input.Body.Level, "modules", input.Body.Modules)
		return &models.LogLevelsResponse{
			Body: models.LogLevelsData{Levels: logging.Levels()},
		}, nil
	})
}

func recentEntries(limit int) []logging.Entry {
	history := logging.GetHistory()
	if history == nil {
		return nil
	}
	return history.Recent(limit)
}

func filterEntries(entries []logging.Entry, level, module string) []logging.Entry {
	if level == "" && module == "" {
		return entries
	}
	out := entries[:0:0]
	for _, e := range entries {
		if module != "" && e.Module != module {
			continue
		}
		if level != "" && !logging.LevelAtLeast(e.Level, level) {
			continue
		}
		out = append(out, e)
	}
	return out
}
