package main

import (
	"github.com/spf13/cobra"
)

func lsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List announced shim nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), a.timeout)
			defer cancel()

			result, err := a.service.ListNodes(ctx)
			if err != nil {
				return err
			}
			return a.printer.Print(result)
		},
	}
}
