// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package transmission implements the torrent client contract against a
// Transmission RPC endpoint. It is the fast-synchronous variant: rechecks are
// quick enough there that no background supervision exists, callers use the
// plain recheck-then-resume sequence.
package transmission

import (
	"context"
	"net/url"
	"strings"

	"github.com/hekmon/transmissionrpc/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tolokarr/internal/domain"
	"github.com/autobrr/tolokarr/internal/torrents"
)

// Client wraps the Transmission RPC behind the shared capability set.
type Client struct {
	rpc      *transmissionrpc.Client
	exec     *torrents.Executor
	timeouts domain.TimeoutConfig
}

var _ torrents.Client = (*Client)(nil)

// NewClient builds a client for the given RPC endpoint. Credentials ride in
// the URL userinfo. Zero-valued tunables fall back to their defaults.
func NewClient(cfg domain.TransmissionConfig, retry domain.RetryConfig, timeouts domain.TimeoutConfig) (*Client, error) {
	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse transmission url")
	}

	rpc, err := transmissionrpc.New(endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build transmission client")
	}

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

	return &Client{
		rpc:      rpc,
		exec:     torrents.NewExecutor(retry),
		timeouts: timeouts,
	}, nil
}

// Connect probes the RPC version so misconfiguration surfaces before the
// first real operation.
func (c *Client) Connect(ctx context.Context) error {
	ok, serverVersion, serverMinimum, err := c.rpc.RPCVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "probe transmission rpc")
	}
	if !ok {
		return errors.Errorf("transmission rpc version %d not supported, server requires at least %d", serverVersion, serverMinimum)
	}
	log.Debug().Int64("rpcVersion", serverVersion).Msg("Connected to Transmission")
	return nil
}

func (c *Client) Name() string {
	return domain.ClientTransmission
}

// Info returns the torrent with the given hash, or nil when absent.
func (c *Client) Info(ctx context.Context, id string) (*torrents.Info, error) {
	t, err := c.fetch(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	return toInfo(t), nil
}

// Files lists the torrent's current file paths.
func (c *Client) Files(ctx context.Context, id string) ([]torrents.File, error) {
	t, err := c.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	out := make([]torrents.File, 0, len(t.Files))
	for _, f := range t.Files {
		progress := 1.0
		if f.Length > 0 {
			progress = float64(f.BytesCompleted) / float64(f.Length)
		}
		out = append(out, torrents.File{
			Name:     f.Name,
			Size:     f.Length,
			Progress: progress,
		})
	}
	return out, nil
}

// EndSession is a no-op: the RPC carries no login state to tear down.
func (c *Client) EndSession(ctx context.Context) error {
	return nil
}

func (c *Client) fetch(ctx context.Context, hash string) (*transmissionrpc.Torrent, error) {
	list, err := c.rpc.TorrentGetAllForHashes(ctx, []string{hash})
	if err != nil {
		return nil, errors.Wrapf(err, "get torrent %s", hash)
	}
	for i := range list {
		if list[i].HashString != nil && strings.EqualFold(*list[i].HashString, hash) {
			return &list[i], nil
		}
	}
	return nil, nil
}

func toInfo(t *transmissionrpc.Torrent) *torrents.Info {
	info := &torrents.Info{Class: torrents.StateUnknown}
	if t.HashString != nil {
		info.ID = strings.ToLower(*t.HashString)
	}
	if t.Name != nil {
		info.Name = *t.Name
	}
	if t.Status != nil {
		info.RawState = t.Status.String()
		info.Class = Classify(*t.Status)
	}
	if t.PercentDone != nil {
		info.Progress = *t.PercentDone
	}
	return info
}

// opCtx caps a verified operation at the configured ceiling.
func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeouts.Operation)
}
