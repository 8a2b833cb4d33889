package main

import (
	"github.com/spf13/cobra"
)

func statusCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status [node]",
		Short: "Show playback state for a node",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd)
			selector := a.node
			if len(args) > 0 {
				selector = args[0]
			}

			if watch {
				return watchStatus(cmd, a, selector)
			}

			ctx, cancel := withTimeout(cmd.Context(), a.timeout)
			defer cancel()

			result, err := a.service.Status(ctx, selector)
			if err != nil {
				return err
			}
			return a.printer.Print(result)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "stream state changes until interrupted")
	return cmd
}

func watchStatus(cmd *cobra.Command, a *app, selector string) error {
	ctx := cmd.Context()
	states, events, errs, err := a.service.WatchStatus(ctx, selector)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case state, ok := <-states:
			if !ok {
				return nil
			}
			if err := a.printer.Print(state); err != nil {
				return err
			}
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !a.quiet {
				if err := a.printer.Print(event); err != nil {
					return err
				}
			}
		case watchErr, ok := <-errs:
			if !ok {
				return nil
			}
			return watchErr
		}
	}
}
