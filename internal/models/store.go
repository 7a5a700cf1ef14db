// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// TitleStore persists titles in a SQLite database.
type TitleStore struct {
	db   *sql.DB
	path string
}

// OpenStore connects to (or creates) the title database under dataDir and
// applies the schema.
func OpenStore(dataDir string) (*TitleStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "titles.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &TitleStore{db: db, path: dbPath}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *TitleStore) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS titles (
    code_name               TEXT PRIMARY KEY,
    episode_index           INTEGER NOT NULL DEFAULT -1,
    season_number           TEXT NOT NULL DEFAULT '',
    torrent_name            TEXT NOT NULL DEFAULT '',
    download_dir            TEXT NOT NULL DEFAULT '',
    release_group           TEXT NOT NULL DEFAULT '',
    meta                    TEXT NOT NULL DEFAULT '',
    adjusted_episode_number INTEGER NOT NULL DEFAULT 0,
    publish_date            TEXT NOT NULL DEFAULT '',
    hash                    TEXT NOT NULL DEFAULT '',
    guid                    TEXT NOT NULL DEFAULT '',
    is_partial_season       INTEGER NOT NULL DEFAULT 0
)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *TitleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Store upserts a title by its code name.
func (s *TitleStore) Store(ctx context.Context, title *Title) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO titles (
            code_name, episode_index, season_number, torrent_name, download_dir,
            release_group, meta, adjusted_episode_number, publish_date, hash,
            guid, is_partial_season
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(code_name) DO UPDATE SET
            episode_index = excluded.episode_index,
            season_number = excluded.season_number,
            torrent_name = excluded.torrent_name,
            download_dir = excluded.download_dir,
            release_group = excluded.release_group,
            meta = excluded.meta,
            adjusted_episode_number = excluded.adjusted_episode_number,
            publish_date = excluded.publish_date,
            hash = excluded.hash,
            guid = excluded.guid,
            is_partial_season = excluded.is_partial_season`,
		title.CodeName,
		title.EpisodeIndex,
		title.SeasonNumber,
		title.TorrentName,
		title.DownloadDir,
		title.ReleaseGroup,
		title.Meta,
		title.AdjustedEpisodeNumber,
		title.PublishDate,
		title.Hash,
		title.GUID,
		boolToInt(title.IsPartialSeason),
	)
	if err != nil {
		return fmt.Errorf("store title %s: %w", title.CodeName, err)
	}
	return nil
}

// Get returns the title with the given code name, or nil when absent.
func (s *TitleStore) Get(ctx context.Context, codeName string) (*Title, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT code_name, episode_index, season_number, torrent_name, download_dir,
            release_group, meta, adjusted_episode_number, publish_date, hash,
            guid, is_partial_season
        FROM titles WHERE code_name = ?`,
		codeName,
	)

	title, err := scanTitle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get title %s: %w", codeName, err)
	}
	return title, nil
}

// List returns every tracked title ordered by code name.
func (s *TitleStore) List(ctx context.Context) ([]*Title, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT code_name, episode_index, season_number, torrent_name, download_dir,
            release_group, meta, adjusted_episode_number, publish_date, hash,
            guid, is_partial_season
        FROM titles ORDER BY code_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	defer rows.Close()

	var titles []*Title
	for rows.Next() {
		title, err := scanTitle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	return titles, nil
}

// Delete removes a title. Deleting an absent code name is not an error.
func (s *TitleStore) Delete(ctx context.Context, codeName string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM titles WHERE code_name = ?`, codeName); err != nil {
		return fmt.Errorf("delete title %s: %w", codeName, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTitle(row rowScanner) (*Title, error) {
	var t Title
	var partial int
	err := row.Scan(
		&t.CodeName,
		&t.EpisodeIndex,
		&t.SeasonNumber,
		&t.TorrentName,
		&t.DownloadDir,
		&t.ReleaseGroup,
		&t.Meta,
		&t.AdjustedEpisodeNumber,
		&t.PublishDate,
		&t.Hash,
		&t.GUID,
		&partial,
	)
	if err != nil {
		return nil, err
	}
	t.IsPartialSeason = partial != 0
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
