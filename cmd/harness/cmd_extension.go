package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"inspectorharness/internal/extension"
	"inspectorharness/internal/logging"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the extension has been built",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := extension.Check(cfg.Extension.Dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Extension ready: %s\n", dir)
		return nil
	},
}

var waitBuildCmd = &cobra.Command{
	Use:   "wait-build",
	Short: "Block until the extension build writes its manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		dir, err := extension.WaitForBuild(ctx, cfg.Extension.Dir, logging.For(logger, logging.CategoryExtension))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Extension ready: %s\n", dir)
		return nil
	},
}
