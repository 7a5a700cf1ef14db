// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/tolokarr/internal/domain"
	"github.com/autobrr/tolokarr/internal/logger"
	"github.com/autobrr/tolokarr/internal/models"
	"github.com/autobrr/tolokarr/internal/qbittorrent"
	"github.com/autobrr/tolokarr/internal/services/organizer"
	"github.com/autobrr/tolokarr/internal/toloka"
	"github.com/autobrr/tolokarr/internal/torrents"
	"github.com/autobrr/tolokarr/internal/transmission"
)

// commandContext carries the flags and lazily-loaded config shared by every
// subcommand.
type commandContext struct {
	configPath string
	cfg        *domain.Config
}

func (c *commandContext) ensureConfig() (*domain.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := domain.ReadConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Version = version
	logger.Setup(cfg)
	c.cfg = cfg
	return cfg, nil
}

// runtime is the wired-up collaborator set a workflow command needs.
type runtime struct {
	cfg     *domain.Config
	store   *models.TitleStore
	indexer *toloka.Client
	client  torrents.Client
	qb      *qbittorrent.Client
}

func (c *commandContext) buildRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	store, err := models.OpenStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	indexer, err := toloka.NewClient(cfg.Toloka.BaseURL, cfg.Toloka.Username, cfg.Toloka.Password, cfg.Timeouts.Request)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	rt := &runtime{cfg: cfg, store: store, indexer: indexer}

	switch cfg.Client {
	case domain.ClientQBittorrent:
		qb := qbittorrent.NewClient(cfg.QBittorrent, cfg.Retry, cfg.Timeouts, cfg.Background)
		if err := qb.Connect(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		rt.client = qb
		rt.qb = qb
	case domain.ClientTransmission:
		tr, err := transmission.NewClient(cfg.Transmission, cfg.Retry, cfg.Timeouts)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if err := tr.Connect(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		rt.client = tr
	default:
		_ = store.Close()
		return nil, errors.Errorf("unknown client %q", cfg.Client)
	}

	return rt, nil
}

func (rt *runtime) close() {
	if err := rt.store.Close(); err != nil {
		log.Debug().Err(err).Msg("Could not close title store")
	}
}

func (rt *runtime) service() *organizer.Service {
	var tags []string
	if rt.cfg.Tag != "" {
		tags = []string{rt.cfg.Tag}
	}
	return organizer.NewService(rt.indexer, rt.client, rt.store, promptEpisodeIndex, organizer.Config{
		SettleDelay: rt.cfg.ClientWaitTime,
		DotStyle:    rt.cfg.DotStyleNames,
		Category:    rt.cfg.Category,
		Tags:        tags,
	})
}

// waitForBackground blocks until outstanding supervised rechecks finish, so
// the process does not exit while checks are still being monitored.
func (rt *runtime) waitForBackground(ctx context.Context) {
	if rt.qb == nil || rt.qb.Tasks().Active() == 0 {
		return
	}
	log.Info().Int("tasks", rt.qb.Tasks().Active()).Msg("Waiting for background rechecks to finish")

	waitCtx, cancel := context.WithTimeout(ctx, rt.cfg.Background.RecheckTimeout)
	defer cancel()
	if err := rt.qb.Tasks().Wait(waitCtx); err != nil {
		log.Warn().Err(err).Msg("Gave up waiting for background rechecks")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), rt.cfg.Timeouts.Poll)
		defer cancelShutdown()
		_ = rt.qb.Tasks().Shutdown(shutdownCtx)
	}
}

func printResult(cmd *cobra.Command, name string, res *organizer.OperationResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, res.Code)
	for _, line := range res.Logs {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", line)
	}
}
