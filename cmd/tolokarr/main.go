// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("tolokarr failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cc := &commandContext{}

	cmd := &cobra.Command{
		Use:           "tolokarr",
		Short:         "Track episodic Toloka releases and keep their torrents media-library named",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cc.configPath, "config", "", "path to config.toml")

	cmd.AddCommand(
		newAddCommand(cc),
		newUpdateCommand(cc),
		newSearchCommand(cc),
		newTokensCommand(),
		newVersionCommand(),
	)
	return cmd
}
