// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"fmt"
	"strings"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tolokarr/internal/torrents"
)

// AddTorrent submits raw torrent bytes and confirms the content-derived hash
// became visible. An empty id with nil error means the torrent was already
// present, or the submission was accepted but never surfaced (add race).
func (c *Client) AddTorrent(ctx context.Context, data []byte, opts torrents.AddOptions) (string, error) {
	hash, err := torrents.InfoHash(data)
	if err != nil {
		return "", err
	}

	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	existing, err := c.Info(ctx, hash)
	if err != nil {
		return "", err
	}
	if existing != nil {
		log.Info().Str("hash", hash).Str("name", existing.Name).Msg("Torrent already present, not adding")
		return "", nil
	}

	options := map[string]string{}
	if opts.Category != "" {
		options["category"] = opts.Category
	}
	if len(opts.Tags) > 0 {
		options["tags"] = strings.Join(opts.Tags, ",")
	}
	if opts.Paused {
		// qBittorrent 5 renamed the field, older versions ignore the new one.
		options["paused"] = "true"
		options["stopped"] = "true"
	}
	if opts.DownloadDir != "" {
		options["savepath"] = opts.DownloadDir
		options["autoTMM"] = "false"
	}

	ok, err := c.exec.Run(ctx, "add torrent",
		func(ctx context.Context) error {
			info, err := c.Info(ctx, hash)
			if err != nil {
				return err
			}
			if info != nil {
				return nil
			}
			return c.qbt.AddTorrentFromMemoryCtx(ctx, data, options)
		},
		func(ctx context.Context) (bool, error) {
			info, err := c.Info(ctx, hash)
			if err != nil {
				return false, err
			}
			return info != nil, nil
		},
	)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	log.Debug().Str("hash", hash).Msg("Torrent added and visible")
	return hash, nil
}

// RenameFile renames one file and confirms the new path exists while the old
// one is gone. Re-applying a rename that already landed is a no-op success.
func (c *Client) RenameFile(ctx context.Context, id, oldPath, newPath string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	applied := func(ctx context.Context) (bool, error) {
		files, err := c.Files(ctx, id)
		if err != nil {
			return false, err
		}
		return torrents.HasPath(files, newPath) && !torrents.HasPath(files, oldPath), nil
	}

	return c.exec.Run(ctx, fmt.Sprintf("rename file to %s", newPath),
		func(ctx context.Context) error {
			done, err := applied(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			return c.qbt.RenameFileCtx(ctx, id, oldPath, newPath)
		},
		applied,
	)
}

// RenameFolder renames the top-level folder and confirms the new segment
// exists while the old one is gone.
func (c *Client) RenameFolder(ctx context.Context, id, oldPath, newPath string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	applied := func(ctx context.Context) (bool, error) {
		files, err := c.Files(ctx, id)
		if err != nil {
			return false, err
		}
		return torrents.HasTopFolder(files, newPath) && !torrents.HasTopFolder(files, oldPath), nil
	}

	return c.exec.Run(ctx, fmt.Sprintf("rename folder to %s", newPath),
		func(ctx context.Context) error {
			done, err := applied(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			return c.qbt.RenameFolderCtx(ctx, id, oldPath, newPath)
		},
		applied,
	)
}

// RenameTorrent sets the summary name and confirms it stuck.
func (c *Client) RenameTorrent(ctx context.Context, id, name string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	return c.exec.Run(ctx, fmt.Sprintf("rename torrent to %s", name),
		func(ctx context.Context) error {
			info, err := c.Info(ctx, id)
			if err != nil {
				return err
			}
			if info != nil && info.Name == name {
				return nil
			}
			return c.qbt.SetTorrentNameCtx(ctx, id, name)
		},
		func(ctx context.Context) (bool, error) {
			info, err := c.Info(ctx, id)
			if err != nil {
				return false, err
			}
			return info != nil && info.Name == name, nil
		},
	)
}

// Resume starts the torrent and confirms it reports a progressing state.
func (c *Client) Resume(ctx context.Context, id string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	return c.exec.Run(ctx, fmt.Sprintf("resume torrent %s", id),
		func(ctx context.Context) error {
			return c.qbt.ResumeCtx(ctx, []string{id})
		},
		func(ctx context.Context) (bool, error) {
			info, err := c.Info(ctx, id)
			if err != nil {
				return false, err
			}
			return info != nil && progressing(qbt.TorrentState(info.RawState)), nil
		},
	)
}

// Delete removes the torrent, optionally with its data, and confirms it is
// gone. Deleting an absent torrent succeeds without a remote call.
func (c *Client) Delete(ctx context.Context, id string, deleteFiles bool) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	existing, err := c.Info(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		log.Debug().Str("hash", id).Msg("Torrent already absent, nothing to delete")
		return true, nil
	}

	return c.exec.Run(ctx, fmt.Sprintf("delete torrent %s", id),
		func(ctx context.Context) error {
			info, err := c.Info(ctx, id)
			if err != nil {
				return err
			}
			if info == nil {
				return nil
			}
			return c.qbt.DeleteTorrentsCtx(ctx, []string{id}, deleteFiles)
		},
		func(ctx context.Context) (bool, error) {
			info, err := c.Info(ctx, id)
			if err != nil {
				return false, err
			}
			return info == nil, nil
		},
	)
}

// Recheck requests an integrity check, fire and forget.
func (c *Client) Recheck(ctx context.Context, id string) error {
	if err := c.qbt.RecheckCtx(ctx, []string{id}); err != nil {
		return fmt.Errorf("recheck torrent %s: %w", id, err)
	}
	return nil
}
