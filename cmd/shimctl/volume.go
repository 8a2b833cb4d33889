package main

import (
	"github.com/spf13/cobra"
)

func volumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "volume <level>",
		Short: "Set the volume (0-100, or +N/-N relative)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), a.timeout)
			defer cancel()

			if err := a.service.Volume(ctx, a.node, args[0], nil); err != nil {
				return err
			}
			return ack(a)
		},
	}
}

func muteCommand() *cobra.Command {
	return muteToggle("mute", "Mute playback audio", true)
}

func unmuteCommand() *cobra.Command {
	return muteToggle("unmute", "Unmute playback audio", false)
}

func muteToggle(use, short string, muted bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), a.timeout)
			defer cancel()

			mute := muted
			if err := a.service.Volume(ctx, a.node, "", &mute); err != nil {
				return err
			}
			return ack(a)
		},
	}
}
