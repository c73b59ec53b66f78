// Package updater replaces the running binary with the latest GitHub
// release. The previous binary is kept next to it with a .old suffix.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/smazurov/framecast/internal/version"
)

// DefaultRepository is the release source.
const DefaultRepository = "smazurov/framecast"

// ErrNoRelease is returned when the repository has no matching release.
var ErrNoRelease = errors.New("repository not found or has no releases")

// Options contains configuration for the updater.
type Options struct {
	Repository string // GitHub repo slug, e.g. "smazurov/framecast"
	Prerelease bool
}

// UpdateInfo describes the latest release relative to the running version.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseURL      string    `json:"release_url"`
	PublishedAt     time.Time `json:"published_at"`
	AssetSize       int       `json:"asset_size"`
	UpdateAvailable bool      `json:"update_available"`
}

// Updater checks for and applies releases.
type Updater struct {
	repo    selfupdate.Repository
	updater *selfupdate.Updater
	logger  *slog.Logger
}

// New creates an updater backed by the GitHub releases API.
func New(opts Options, logger *slog.Logger) (*Updater, error) {
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create GitHub source: %w", err)
	}
	u, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}
	return &Updater{
		repo:    selfupdate.ParseSlug(opts.Repository),
		updater: u,
		logger:  logger,
	}, nil
}

// Check looks up the latest release without downloading it.
func (u *Updater) Check(ctx context.Context) (UpdateInfo, error) {
	_, info, err := u.latest(ctx)
	return info, err
}

// Apply downloads the latest release and swaps it in if it is newer. The
// running process keeps the old binary; restart to pick up the new one.
func (u *Updater) Apply(ctx context.Context) (UpdateInfo, error) {
	release, info, err := u.latest(ctx)
	if err != nil || !info.UpdateAvailable {
		return info, err
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return info, fmt.Errorf("locate executable: %w", err)
	}
	backup := exe + ".old"
	if err := copyFile(exe, backup); err != nil {
		return info, fmt.Errorf("back up %s: %w", exe, err)
	}
	u.logger.Info("Backed up current binary", "path", backup, "version", info.CurrentVersion)

	if err := u.updater.UpdateTo(ctx, release, exe); err != nil {
		return info, fmt.Errorf("apply %s: %w", info.LatestVersion, err)
	}
	u.logger.Info("Update applied", "from", info.CurrentVersion, "to", info.LatestVersion)
	return info, nil
}

func (u *Updater) latest(ctx context.Context) (*selfupdate.Release, UpdateInfo, error) {
	current := version.String()
	info := UpdateInfo{CurrentVersion: current}

	release, found, err := u.updater.DetectLatest(ctx, u.repo)
	if err != nil {
		return nil, info, fmt.Errorf("check for updates: %w", err)
	}
	if !found {
		return nil, info, ErrNoRelease
	}

	info.LatestVersion = release.Version()
	info.ReleaseURL = release.URL
	info.PublishedAt = release.PublishedAt
	info.AssetSize = release.AssetByteSize
	info.UpdateAvailable = isNewer(current, release.GreaterThan)
	return release, info, nil
}

// isNewer reports whether a release should replace current. Development
// builds always update.
func isNewer(current string, greaterThan func(string) bool) bool {
	return current == "dev" || greaterThan(current)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, st.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
