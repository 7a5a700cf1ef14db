// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package models holds the persisted per-release record and its SQLite store.
package models

// UnresolvedEpisodeIndex marks a title whose episode token position has not
// been chosen yet. The lifecycle service asks the injected resolver for it on
// the first add.
const UnresolvedEpisodeIndex = -1

// Title is one tracked release. CodeName is the unique key; Hash and GUID are
// set only after a torrent has been added successfully, and the record is
// persisted only when a whole add or update run succeeds.
type Title struct {
	CodeName              string
	EpisodeIndex          int
	SeasonNumber          string
	TorrentName           string
	DownloadDir           string
	ReleaseGroup          string
	Meta                  string
	AdjustedEpisodeNumber int
	PublishDate           string
	Hash                  string
	GUID                  string
	IsPartialSeason       bool
}

// NewTitle returns a title with the episode index unresolved.
func NewTitle(codeName string) *Title {
	return &Title{
		CodeName:     codeName,
		EpisodeIndex: UnresolvedEpisodeIndex,
	}
}
