package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/un5af3/kapibara/config"
)

func newTestCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "parse a config file and report whether it is valid",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if _, err := config.Build(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML or JSON config file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
