// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package organizer composes the tracker client, a torrent client, and the
// naming rules into the add and update workflows. It owns the per-run
// OperationResult and persists titles only when a run succeeds.
package organizer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/tolokarr/internal/models"
	"github.com/autobrr/tolokarr/internal/toloka"
)

// Indexer is the tracker-side collaborator: it resolves a stored guid to
// fresh metadata and fetches torrent payloads.
type Indexer interface {
	GetRelease(ctx context.Context, guid string) (*toloka.Release, error)
	Download(ctx context.Context, release *toloka.Release) ([]byte, error)
}

// Store persists tracked titles between runs.
type Store interface {
	Store(ctx context.Context, title *models.Title) error
	Get(ctx context.Context, codeName string) (*models.Title, error)
	List(ctx context.Context) ([]*models.Title, error)
}

// ResponseCode is the coarse outcome of one workflow run.
type ResponseCode int

const (
	ResponseSuccess ResponseCode = iota
	ResponseFailure
)

func (c ResponseCode) String() string {
	if c == ResponseSuccess {
		return "SUCCESS"
	}
	return "FAILURE"
}

// OperationResult collects the outcome of a single add or update run: the
// response code, the ordered human-readable log, and the titles and releases
// the run touched. Created fresh per invocation and never reused.
type OperationResult struct {
	Code     ResponseCode
	Logs     []string
	Titles   []*models.Title
	Releases []*toloka.Release
}

func newResult() *OperationResult {
	return &OperationResult{Code: ResponseSuccess}
}

// Succeeded reports whether the run kept its success code.
func (r *OperationResult) Succeeded() bool {
	return r.Code == ResponseSuccess
}

// Infof appends a log line, mirrored to the global logger.
func (r *OperationResult) Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Logs = append(r.Logs, msg)
	log.Info().Msg(msg)
}

// Failf appends a log line and flips the result to FAILURE.
func (r *OperationResult) Failf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Logs = append(r.Logs, msg)
	r.Code = ResponseFailure
	log.Error().Msg(msg)
}
