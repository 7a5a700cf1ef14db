// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transmission

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hekmon/transmissionrpc/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tolokarr/internal/naming"
	"github.com/autobrr/tolokarr/internal/torrents"
)

// AddTorrent submits raw torrent bytes and confirms the content-derived hash
// became visible. An empty id with nil error means the torrent was already
// present, or the submission was accepted but never surfaced.
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

	meta := base64.StdEncoding.EncodeToString(data)
	payload := transmissionrpc.TorrentAddPayload{MetaInfo: &meta}
	if opts.DownloadDir != "" {
		payload.DownloadDir = &opts.DownloadDir
	}
	if opts.Paused {
		paused := true
		payload.Paused = &paused
	}
	if opts.Category != "" {
		payload.Labels = append(payload.Labels, opts.Category)
	}
	payload.Labels = append(payload.Labels, opts.Tags...)

	ok, err := c.exec.Run(ctx, "add torrent",
		func(ctx context.Context) error {
			t, err := c.fetch(ctx, hash)
			if err != nil {
				return err
			}
			if t != nil {
				return nil
			}
			_, err = c.rpc.TorrentAdd(ctx, payload)
			return err
		},
		func(ctx context.Context) (bool, error) {
			t, err := c.fetch(ctx, hash)
			if err != nil {
				return false, err
			}
			return t != nil, nil
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
// one is gone. torrent-rename-path takes the existing path plus the new base
// segment, so the base is derived from the target path.
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
			return c.rpc.TorrentRenamePathHash(ctx, id, oldPath, naming.BaseName(newPath))
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
			return c.rpc.TorrentRenamePathHash(ctx, id, oldPath, naming.BaseName(newPath))
		},
		applied,
	)
}

// RenameTorrent renames the content root, which is what Transmission shows as
// the torrent name.
func (c *Client) RenameTorrent(ctx context.Context, id, name string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	return c.exec.Run(ctx, fmt.Sprintf("rename torrent to %s", name),
		func(ctx context.Context) error {
			info, err := c.Info(ctx, id)
			if err != nil {
				return err
			}
			if info == nil {
				return errors.Errorf("torrent %s not found", id)
			}
			if info.Name == name {
				return nil
			}
			return c.rpc.TorrentRenamePathHash(ctx, id, info.Name, name)
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

// Resume starts the torrent and confirms it reports a progressing status.
func (c *Client) Resume(ctx context.Context, id string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	return c.exec.Run(ctx, fmt.Sprintf("resume torrent %s", id),
		func(ctx context.Context) error {
			return c.rpc.TorrentStartHashes(ctx, []string{id})
		},
		func(ctx context.Context) (bool, error) {
			t, err := c.fetch(ctx, id)
			if err != nil {
				return false, err
			}
			return t != nil && t.Status != nil && progressing(*t.Status), nil
		},
	)
}

// Delete removes the torrent, optionally with its data, and confirms it is
// gone. Deleting an absent torrent succeeds without a remote call.
func (c *Client) Delete(ctx context.Context, id string, deleteFiles bool) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	existing, err := c.fetch(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		log.Debug().Str("hash", id).Msg("Torrent already absent, nothing to delete")
		return true, nil
	}

	return c.exec.Run(ctx, fmt.Sprintf("delete torrent %s", id),
		func(ctx context.Context) error {
			t, err := c.fetch(ctx, id)
			if err != nil {
				return err
			}
			if t == nil {
				return nil
			}
			if t.ID == nil {
				return errors.Errorf("torrent %s has no id", id)
			}
			return c.rpc.TorrentRemove(ctx, transmissionrpc.TorrentRemovePayload{
				IDs:             []int64{*t.ID},
				DeleteLocalData: deleteFiles,
			})
		},
		func(ctx context.Context) (bool, error) {
			t, err := c.fetch(ctx, id)
			if err != nil {
				return false, err
			}
			return t == nil, nil
		},
	)
}

// Recheck requests an integrity check, fire and forget. Transmission checks
// are fast enough that callers follow up with a plain verified Resume.
func (c *Client) Recheck(ctx context.Context, id string) error {
	if err := c.rpc.TorrentVerifyHashes(ctx, []string{id}); err != nil {
		return errors.Wrapf(err, "recheck torrent %s", id)
	}
	return nil
}
