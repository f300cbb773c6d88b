package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// newRootCmd creates the root petpal command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "petpal",
		Short:         "Pet-care robot control service",
		Long:          "petpal keeps self-healing links to the robot and its accessory board\nand serves the phone UI's control surface.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("petpal {{.Version}}\n")
	cmd.PersistentFlags().StringP("config", "c", "", "path to YAML config (defaults plus environment if empty)")

	cmd.AddCommand(
		newServeCmd(),
		newDriveCmd(),
		newVersionCmd(),
	)

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("petpal %s\n", version)
		},
	}
}
