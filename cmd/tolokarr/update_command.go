// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newUpdateCommand(cc *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "update [code-name]",
		Short: "Re-check tracked releases and replace outdated torrents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := cc.buildRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			svc := rt.service()

			if len(args) == 1 {
				title, err := rt.store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if title == nil {
					return errors.Errorf("no tracked title %q", args[0])
				}
				res, err := svc.Update(cmd.Context(), title, force)
				if err != nil {
					return err
				}
				rt.waitForBackground(cmd.Context())
				printResult(cmd, title.CodeName, res)
				return nil
			}

			results, err := svc.UpdateAll(cmd.Context(), force)
			rt.waitForBackground(cmd.Context())
			for _, res := range results {
				name := "update"
				if len(res.Titles) > 0 {
					name = res.Titles[0].CodeName
				}
				printResult(cmd, name, res)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace the torrent even when the publish date is unchanged")
	return cmd
}
