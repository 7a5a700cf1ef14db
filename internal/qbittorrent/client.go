// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbittorrent implements the torrent client contract against a
// qBittorrent WebUI instance. It is the async-capable variant: long integrity
// checks are handed to a supervised background task instead of blocking the
// caller.
package qbittorrent

import (
	"context"
	"fmt"
	"strings"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/hashicorp/go-version"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tolokarr/internal/domain"
	"github.com/autobrr/tolokarr/internal/torrents"
)

var renameTorrentMinVersion = version.Must(version.NewVersion("2.0.0"))

// Client wraps the qBittorrent WebAPI behind the shared capability set.
type Client struct {
	qbt        *qbt.Client
	exec       *torrents.Executor
	timeouts   domain.TimeoutConfig
	background domain.BackgroundConfig
	tasks      *TaskManager

	webAPIVersion *version.Version
}

var (
	_ torrents.Client         = (*Client)(nil)
	_ torrents.AsyncRechecker = (*Client)(nil)
)

// NewClient builds a client for the given WebUI. Zero-valued tunables fall
// back to their defaults.
func NewClient(cfg domain.QBittorrentConfig, retry domain.RetryConfig, timeouts domain.TimeoutConfig, background domain.BackgroundConfig) *Client {
	def := domain.DefaultTimeoutConfig()
	if timeouts.Operation <= 0 {
		timeouts.Operation = def.Operation
	}
	if timeouts.Poll <= 0 {
		timeouts.Poll = def.Poll
	}
	if timeouts.Request <= 0 {
		timeouts.Request = def.Request
	}

	c := &Client{
		qbt: qbt.NewClient(qbt.Config{
			Host:     cfg.Host,
			Username: cfg.Username,
			Password: cfg.Password,
		}),
		exec:       torrents.NewExecutor(retry),
		timeouts:   timeouts,
		background: background,
	}
	c.tasks = NewTaskManager(background, c)
	return c
}

// Connect logs in and records the WebAPI version for capability gating.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.qbt.LoginCtx(ctx); err != nil {
		return fmt.Errorf("login to qbittorrent: %w", err)
	}

	raw, err := c.qbt.GetWebAPIVersionCtx(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read WebAPI version, assuming a current one")
		return nil
	}
	if v, err := version.NewVersion(raw); err == nil {
		c.webAPIVersion = v
	}
	log.Debug().Str("webApiVersion", raw).Msg("Connected to qBittorrent")
	return nil
}

func (c *Client) Name() string {
	return domain.ClientQBittorrent
}

// SupportsRenameTorrent reports whether the WebAPI accepts torrent renames.
func (c *Client) SupportsRenameTorrent() bool {
	if c.webAPIVersion == nil {
		return true
	}
	return c.webAPIVersion.GreaterThanOrEqual(renameTorrentMinVersion)
}

// Info returns the torrent with the given hash, or nil when absent.
func (c *Client) Info(ctx context.Context, id string) (*torrents.Info, error) {
	list, err := c.qbt.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{id}})
	if err != nil {
		return nil, fmt.Errorf("get torrent %s: %w", id, err)
	}
	for _, t := range list {
		if strings.EqualFold(t.Hash, id) {
			return &torrents.Info{
				ID:       t.Hash,
				Name:     t.Name,
				RawState: string(t.State),
				Class:    Classify(t.State),
				Progress: t.Progress,
			}, nil
		}
	}
	return nil, nil
}

// Files lists the torrent's current file paths.
func (c *Client) Files(ctx context.Context, id string) ([]torrents.File, error) {
	files, err := c.qbt.GetFilesInformationCtx(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get files for %s: %w", id, err)
	}
	if files == nil {
		return nil, nil
	}
	out := make([]torrents.File, 0, len(*files))
	for _, f := range *files {
		out = append(out, torrents.File{
			Name:     f.Name,
			Size:     f.Size,
			Progress: float64(f.Progress),
		})
	}
	return out, nil
}

// EndSession logs out of the WebUI. Idempotent; background supervision keeps
// its own session handling.
func (c *Client) EndSession(ctx context.Context) error {
	if err := c.qbt.LogoutCtx(ctx); err != nil {
		return fmt.Errorf("logout from qbittorrent: %w", err)
	}
	return nil
}

// Tasks exposes the background recheck supervisor, mainly so callers can wait
// for or shut down outstanding work before exiting.
func (c *Client) Tasks() *TaskManager {
	return c.tasks
}

// opCtx caps a verified operation at the configured ceiling.
func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeouts.Operation)
}
