// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package organizer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tolokarr/internal/models"
	"github.com/autobrr/tolokarr/internal/naming"
	"github.com/autobrr/tolokarr/internal/toloka"
	"github.com/autobrr/tolokarr/internal/torrents"
)

// Config carries the workflow tunables the service needs beyond its
// collaborators.
type Config struct {
	// SettleDelay is the pause after add and delete before the first
	// follow-up call, absorbing client-side propagation latency.
	SettleDelay time.Duration
	DotStyle    bool
	Category    string
	Tags        []string
}

// Service runs the add and update workflows. One invocation runs on one
// goroutine; two concurrent runs against the same title are unsupported.
type Service struct {
	indexer Indexer
	client  torrents.Client
	store   Store
	resolve naming.IndexResolver
	cfg     Config
}

// renameTorrentGate is the optional capability of clients whose remote may be
// too old to rename the torrent summary.
type renameTorrentGate interface {
	SupportsRenameTorrent() bool
}

// NewService wires the workflow service. resolve may be nil when every title
// already has its episode index; it is only consulted for the sentinel.
func NewService(indexer Indexer, client torrents.Client, store Store, resolve naming.IndexResolver, cfg Config) *Service {
	return &Service{
		indexer: indexer,
		client:  client,
		store:   store,
		resolve: resolve,
		cfg:     cfg,
	}
}

// Add runs the full add workflow for a fresh title and ends the client
// session afterward. Expected failures come back as a FAILURE result with nil
// error; a non-nil error means a remote kept failing past the retry budget.
func (s *Service) Add(ctx context.Context, title *models.Title, release *toloka.Release) (*OperationResult, error) {
	res := newResult()
	err := s.runAdd(ctx, res, title, release, true)
	s.endSession(ctx)
	return res, err
}

// Update re-checks one tracked title against the tracker and replaces its
// torrent when a newer upload exists. force skips the publish-date comparison.
func (s *Service) Update(ctx context.Context, title *models.Title, force bool) (*OperationResult, error) {
	res := newResult()
	err := s.runUpdate(ctx, res, title, force)
	s.endSession(ctx)
	return res, err
}

// UpdateAll updates every tracked title sequentially, one result per title,
// and ends the session once at the end. A run-fatal error stops the sweep.
func (s *Service) UpdateAll(ctx context.Context, force bool) ([]*OperationResult, error) {
	titles, err := s.store.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list titles")
	}

	results := make([]*OperationResult, 0, len(titles))
	for _, title := range titles {
		res := newResult()
		err := s.runUpdate(ctx, res, title, force)
		results = append(results, res)
		if err != nil {
			s.endSession(ctx)
			return results, err
		}
	}
	s.endSession(ctx)
	return results, nil
}

// runAdd is the shared add path. isNew distinguishes a first-time add (ends
// with a resume) from a re-add during update (ends with a recheck so the kept
// files are verified against the new torrent).
func (s *Service) runAdd(ctx context.Context, res *OperationResult, title *models.Title, release *toloka.Release, isNew bool) error {
	data, err := s.indexer.Download(ctx, release)
	if err != nil {
		res.Failf("Failed to download torrent for %s: %v", title.CodeName, err)
		return nil
	}

	id, err := s.client.AddTorrent(ctx, data, torrents.AddOptions{
		Category:    s.cfg.Category,
		Tags:        s.cfg.Tags,
		Paused:      true,
		DownloadDir: title.DownloadDir,
	})
	if err != nil {
		res.Failf("Failed to add torrent for %s: %v", title.CodeName, err)
		return err
	}
	if id == "" {
		res.Failf("Torrent already exists for %s", title.CodeName)
		return nil
	}
	res.Infof("Added torrent %s for %s", id, title.CodeName)

	if err := torrents.Sleep(ctx, s.cfg.SettleDelay); err != nil {
		return err
	}

	files, err := s.client.Files(ctx, id)
	if err != nil {
		res.Failf("Failed to list files of %s: %v", id, err)
		return err
	}
	if len(files) == 0 {
		res.Failf("Torrent %s reports no files", id)
		return nil
	}

	title.Hash = id
	title.GUID = release.GUID

	if title.EpisodeIndex == models.UnresolvedEpisodeIndex {
		if err := s.resolveEpisodeIndex(title, files[0]); err != nil {
			res.Failf("Cannot resolve episode index for %s: %v", title.CodeName, err)
			return nil
		}
		res.Infof("Episode index for %s resolved to %d (adjustment %d)", title.CodeName, title.EpisodeIndex, title.AdjustedEpisodeNumber)
	}

	scheme := s.scheme(title)

	var minEp, maxEp int
	for i, f := range files {
		episode, err := naming.EpisodeNumber(naming.BaseName(f.Name), title.EpisodeIndex, title.AdjustedEpisodeNumber)
		if err != nil {
			res.Failf("Cannot derive episode number for %q: %v", f.Name, err)
			return nil
		}
		n, _ := strconv.Atoi(episode)
		if i == 0 || n < minEp {
			minEp = n
		}
		if i == 0 || n > maxEp {
			maxEp = n
		}

		target := scheme.FileName(episode, naming.Extension(f.Name))
		if title.IsPartialSeason && naming.BaseName(f.Name) == target {
			res.Infof("File already named %s, skipping rename", target)
			continue
		}

		ok, err := s.client.RenameFile(ctx, id, f.Name, naming.ReplaceBase(f.Name, target))
		if err != nil {
			res.Failf("Failed to rename file %q: %v", f.Name, err)
			return err
		}
		if !ok {
			res.Failf("Failed to rename file %q to %q", f.Name, target)
			return nil
		}
		res.Infof("Renamed file to %s", target)
	}

	containerName := scheme.SeasonName()
	if title.IsPartialSeason {
		containerName = scheme.EpisodeRangeName(minEp, maxEp)
	}

	if top := naming.TopFolder(files[0].Name); top != "" && top != containerName {
		ok, err := s.client.RenameFolder(ctx, id, top, containerName)
		if err != nil {
			res.Failf("Failed to rename folder %q: %v", top, err)
			return err
		}
		if !ok {
			res.Failf("Failed to rename folder %q to %q", top, containerName)
			return nil
		}
		res.Infof("Renamed folder to %s", containerName)
	}

	if gate, ok := s.client.(renameTorrentGate); ok && !gate.SupportsRenameTorrent() {
		res.Infof("Client cannot rename torrents, keeping summary name of %s", id)
	} else {
		ok, err := s.client.RenameTorrent(ctx, id, containerName)
		if err != nil {
			res.Failf("Failed to rename torrent %s: %v", id, err)
			return err
		}
		if !ok {
			res.Failf("Failed to rename torrent %s to %q", id, containerName)
			return nil
		}
		res.Infof("Renamed torrent to %s", containerName)
	}

	if isNew {
		ok, err := s.client.Resume(ctx, id)
		if err != nil {
			res.Failf("Failed to resume torrent %s: %v", id, err)
			return err
		}
		if !ok {
			res.Failf("Failed to resume torrent %s", id)
			return nil
		}
		res.Infof("Torrent %s resumed", id)
	} else if !s.recheckAndResume(ctx, res, title, id) {
		return nil
	}

	title.PublishDate = release.PublishDate
	if err := s.store.Store(ctx, title); err != nil {
		res.Failf("Failed to persist title %s: %v", title.CodeName, err)
		return err
	}

	res.Titles = append(res.Titles, title)
	res.Releases = append(res.Releases, release)
	res.Infof("Successfully processed %s", title.CodeName)
	return nil
}

// recheckAndResume restarts verification after a re-add. Async-capable
// clients hand the wait to their supervisor and answer immediately; the rest
// get the plain recheck-then-resume sequence.
func (s *Service) recheckAndResume(ctx context.Context, res *OperationResult, title *models.Title, id string) bool {
	if ar, ok := s.client.(torrents.AsyncRechecker); ok {
		started, msg := ar.RecheckAndResumeAsync(ctx, id, func(ok bool, message string) {
			if ok {
				log.Info().Str("codeName", title.CodeName).Str("hash", id).Msg(message)
			} else {
				log.Error().Str("codeName", title.CodeName).Str("hash", id).Msg(message)
			}
		})
		res.Infof("%s", msg)
		if !started {
			res.Failf("Failed to start recheck for %s", title.CodeName)
			return false
		}
		return true
	}

	if err := s.client.Recheck(ctx, id); err != nil {
		res.Failf("Failed to start recheck for %s: %v", title.CodeName, err)
		return false
	}
	ok, err := s.client.Resume(ctx, id)
	if err != nil || !ok {
		res.Failf("Failed to resume torrent %s after recheck", id)
		return false
	}
	res.Infof("Torrent %s rechecked and resumed", id)
	return true
}

// runUpdate is the update path: compare publish dates, and on a newer upload
// replace the torrent while keeping the downloaded files on disk.
func (s *Service) runUpdate(ctx context.Context, res *OperationResult, title *models.Title, force bool) error {
	if title.GUID == "" {
		res.Failf("Title %s has no stored guid, add it first", title.CodeName)
		return nil
	}

	release, err := s.indexer.GetRelease(ctx, title.GUID)
	if err != nil {
		res.Failf("Failed to fetch release %s for %s: %v", title.GUID, title.CodeName, err)
		return nil
	}

	if !force && title.PublishDate != "" && strings.Contains(release.PublishDate, title.PublishDate) {
		res.Infof("Update not required for %s", title.CodeName)
		res.Titles = append(res.Titles, title)
		res.Releases = append(res.Releases, release)
		return nil
	}
	if force {
		res.Infof("Forced update of %s", title.CodeName)
	} else {
		res.Infof("New upload for %s (published %s), replacing torrent", title.CodeName, release.PublishDate)
	}

	if title.Hash != "" {
		if err := s.resetPartialFolder(ctx, res, title); err != nil {
			return err
		}
		if !res.Succeeded() {
			return nil
		}

		ok, err := s.client.Delete(ctx, title.Hash, false)
		if err != nil {
			res.Failf("Failed to delete torrent %s: %v", title.Hash, err)
			return err
		}
		if !ok {
			res.Failf("Failed to delete torrent %s, aborting update", title.Hash)
			return nil
		}
		res.Infof("Deleted torrent %s, files kept", title.Hash)

		if err := torrents.Sleep(ctx, s.cfg.SettleDelay); err != nil {
			return err
		}
	}

	return s.runAdd(ctx, res, title, release, false)
}

// resetPartialFolder renames a partial season's folder back to the plain
// full-season form so the replacement torrent finds the files where its own
// layout expects them.
func (s *Service) resetPartialFolder(ctx context.Context, res *OperationResult, title *models.Title) error {
	if !title.IsPartialSeason {
		return nil
	}

	info, err := s.client.Info(ctx, title.Hash)
	if err != nil {
		res.Failf("Failed to check torrent %s: %v", title.Hash, err)
		return err
	}
	if info == nil {
		return nil
	}

	files, err := s.client.Files(ctx, title.Hash)
	if err != nil {
		res.Failf("Failed to list files of %s: %v", title.Hash, err)
		return err
	}
	if len(files) == 0 {
		return nil
	}

	base := s.scheme(title).BaseFolder()
	top := naming.TopFolder(files[0].Name)
	if top == "" || top == base {
		return nil
	}

	ok, err := s.client.RenameFolder(ctx, title.Hash, top, base)
	if err != nil {
		res.Failf("Failed to reset folder %q: %v", top, err)
		return err
	}
	if !ok {
		res.Failf("Failed to reset folder %q to %q", top, base)
		return nil
	}
	res.Infof("Reset folder to %s", base)
	return nil
}

func (s *Service) resolveEpisodeIndex(title *models.Title, first torrents.File) error {
	if s.resolve == nil {
		return errors.New("episode index unresolved and no resolver supplied")
	}

	candidates := naming.TokensWithContext(naming.BaseName(first.Name))
	if len(candidates) == 0 {
		return errors.Errorf("no numeric tokens in %q", first.Name)
	}

	index, adjust, err := s.resolve(candidates)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(candidates) {
		return errors.Errorf("resolved index %d out of range for %d tokens", index, len(candidates))
	}

	title.EpisodeIndex = index
	title.AdjustedEpisodeNumber = adjust
	return nil
}

func (s *Service) scheme(title *models.Title) naming.Scheme {
	return naming.Scheme{
		Show:         title.TorrentName,
		Season:       title.SeasonNumber,
		Meta:         title.Meta,
		ReleaseGroup: title.ReleaseGroup,
		DotStyle:     s.cfg.DotStyle,
	}
}

func (s *Service) endSession(ctx context.Context) {
	if err := s.client.EndSession(ctx); err != nil {
		log.Debug().Err(err).Msg("Could not end client session")
	}
}
