package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iwalton3/jellyfin-web-jmp/internal/ctl"
)

func audioCommand() *cobra.Command {
	return streamCommand("audio", "Select an audio stream by index", func(s ctl.Service, ctx context.Context, selector string, index int) error {
		return s.SetAudioStream(ctx, selector, index)
	})
}

func subtitlesCommand() *cobra.Command {
	return streamCommand("subtitles", "Select a subtitle stream by index (-1 disables)", func(s ctl.Service, ctx context.Context, selector string, index int) error {
		return s.SetSubtitleStream(ctx, selector, index)
	})
}

func streamCommand(use, short string, call func(ctl.Service, context.Context, string, int) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <index>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd)
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return ctl.WrapError(ctl.ExitUsage, "stream index must be an integer", err)
			}

			ctx, cancel := withTimeout(cmd.Context(), a.timeout)
			defer cancel()

			if err := call(a.service, ctx, a.node, index); err != nil {
				return err
			}
			return ack(a)
		},
	}
}

func repeatCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "repeat <none|all|one>",
		Short:     "Set the repeat mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"none", "all", "one"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd)
			mode, ok := repeatModes[args[0]]
			if !ok {
				return &ctl.CLIError{Code: ctl.ExitUsage, Msg: "repeat mode must be none|all|one"}
			}

			ctx, cancel := withTimeout(cmd.Context(), a.timeout)
			defer cancel()

			if err := a.service.SetRepeat(ctx, a.node, mode); err != nil {
				return err
			}
			return ack(a)
		},
	}
}

func shuffleCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "shuffle <on|off>",
		Short:     "Enable or disable shuffle",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd)
			mode, ok := shuffleModes[args[0]]
			if !ok {
				return &ctl.CLIError{Code: ctl.ExitUsage, Msg: "shuffle mode must be on|off"}
			}

			ctx, cancel := withTimeout(cmd.Context(), a.timeout)
			defer cancel()

			if err := a.service.SetShuffle(ctx, a.node, mode); err != nil {
				return err
			}
			return ack(a)
		},
	}
}

var repeatModes = map[string]string{
	"none": "RepeatNone",
	"all":  "RepeatAll",
	"one":  "RepeatOne",
}

var shuffleModes = map[string]string{
	"on":  "Shuffle",
	"off": "Sorted",
}
