package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/iwalton3/jellyfin-web-jmp/internal/ctl"
)

func playCommand() *cobra.Command {
	var start time.Duration

	cmd := &cobra.Command{
		Use:   "play <item-id>...",
		Short: "Start playback of one or more items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), a.timeout)
			defer cancel()

			var startTicks *int64
			if cmd.Flags().Changed("start") {
				ticks := int64(start/time.Millisecond) * (ctl.TicksPerSecond / 1000)
				startTicks = &ticks
			}
			if err := a.service.Play(ctx, a.node, args, startTicks); err != nil {
				return err
			}
			return ack(a)
		},
	}
	cmd.Flags().DurationVar(&start, "start", 0, "start position, e.g. 1m30s")
	return cmd
}

func pauseCommand() *cobra.Command {
	return simplePlayback("pause", "Pause playback", func(s ctl.Service, ctx context.Context, selector string) error {
		return s.Pause(ctx, selector)
	})
}

func unpauseCommand() *cobra.Command {
	return simplePlayback("unpause", "Resume playback", func(s ctl.Service, ctx context.Context, selector string) error {
		return s.Unpause(ctx, selector)
	})
}

func toggleCommand() *cobra.Command {
	return simplePlayback("toggle", "Toggle pause", func(s ctl.Service, ctx context.Context, selector string) error {
		return s.Toggle(ctx, selector)
	})
}

func stopCommand() *cobra.Command {
	return simplePlayback("stop", "Stop playback", func(s ctl.Service, ctx context.Context, selector string) error {
		return s.Stop(ctx, selector)
	})
}

func nextCommand() *cobra.Command {
	return simplePlayback("next", "Skip to the next queue item", func(s ctl.Service, ctx context.Context, selector string) error {
		return s.Next(ctx, selector)
	})
}

func prevCommand() *cobra.Command {
	return simplePlayback("prev", "Skip to the previous queue item", func(s ctl.Service, ctx context.Context, selector string) error {
		return s.Prev(ctx, selector)
	})
}

func seekCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seek <position>",
		Short: "Seek to a position (30, 1m30s, +15s, -15s)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), a.timeout)
			defer cancel()

			if err := a.service.Seek(ctx, a.node, args[0]); err != nil {
				return err
			}
			return ack(a)
		},
	}
}

func simplePlayback(use, short string, call func(ctl.Service, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), a.timeout)
			defer cancel()

			if err := call(a.service, ctx, a.node); err != nil {
				return err
			}
			return ack(a)
		},
	}
}

func ack(a *app) error {
	if a.quiet {
		return nil
	}
	return a.printer.Print("ok")
}
