package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/vkbot/core/bootstrap"
	"github.com/m3rciful/vkbot/core/buildinfo"
	corecmd "github.com/m3rciful/vkbot/core/cmd"
)

const defaultConfigPath = "configs/config.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "echobot",
		Short:        "VK Teams echo bot",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "Config file path (overrides CONFIG_PATH).")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll VK Teams and answer until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return corecmd.Run(corecmd.Options{
				ConfigPath:        path,
				DefaultConfigPath: defaultConfigPath,
				Modules:           []bootstrap.Module{bootstrap.ModuleFunc(registerEcho)},
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}
