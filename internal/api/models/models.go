package models

import (
	"github.com/smazurov/framecast/internal/capture"
	"github.com/smazurov/framecast/internal/logging"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"channel is live" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"a1b2c3d" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Status models
type StatusResponse struct {
	Body capture.Status
}

// Log models
type LogsInput struct {
	Limit  int    `query:"limit" minimum:"0" maximum:"500" default:"100" doc:"Maximum entries to return, newest last"`
	Level  string `query:"level" enum:"debug,info,warn,error" doc:"Minimum level to include"`
	Module string `query:"module" doc:"Only include entries from this module"`
}

type LogsData struct {
	Entries []logging.Entry `json:"entries" doc:"Log entries, oldest first"`
	Count   int             `json:"count" example:"42" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelsData struct {
	Levels map[string]string `json:"levels" doc:"Effective level per module; default is the global level"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type SetLogLevelsInput struct {
	Body struct {
		Level   string            `json:"level" enum:"debug,info,warn,error" doc:"Global level"`
		Modules map[string]string `json:"modules,omitempty" doc:"Per-module overrides"`
	}
}
