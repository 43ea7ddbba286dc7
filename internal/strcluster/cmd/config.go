package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"strcluster/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after applying the config file and flags.
With --write it is saved to the config file, which is created when missing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		write, _ := cmd.Flags().GetBool("write")
		cfg, err := loadConfigFrom(cmd, write)
		if err != nil {
			return err
		}
		if write {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}
			if err := config.Save(path, cfg); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configCmd.Flags().BoolP("write", "w", false, "Write the configuration file")
	addFilterFlags(configCmd)
	rootCmd.AddCommand(configCmd)
}
