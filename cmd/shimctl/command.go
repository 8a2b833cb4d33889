package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/iwalton3/jellyfin-web-jmp/internal/ctl"
)

func rawCommand() *cobra.Command {
	var kvArgs []string

	cmd := &cobra.Command{
		Use:   "command <name>",
		Short: "Send an arbitrary named command to the player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd)
			cmdArgs, err := parseKeyValues(kvArgs)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context(), a.timeout)
			defer cancel()

			if err := a.service.RawCommand(ctx, a.node, args[0], cmdArgs); err != nil {
				return err
			}
			return ack(a)
		},
	}
	cmd.Flags().StringArrayVarP(&kvArgs, "arg", "a", nil, "command argument as key=value (repeatable)")
	return cmd
}

func parseKeyValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, val, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, &ctl.CLIError{Code: ctl.ExitUsage, Msg: "argument must be key=value, got " + pair}
		}
		out[key] = val
	}
	return out, nil
}
