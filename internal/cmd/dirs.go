package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/vlist/internal/config"
	"github.com/spf13/cobra"
)

var dirsCmd = &cobra.Command{
	Use:   "dirs",
	Short: "Print directories used by vlist",
	Long: heredoc.Doc(`
		Print the directories where vlist reads its configuration and keeps
		its data: the global configuration directory, the global data
		directory and the project data directory holding logs and the SQLite
		source.
	`),
	Example: heredoc.Doc(`
		# Print all directories
		vlist dirs

		# Print only the config directory
		vlist dirs --config

		# Print only the project data directory
		vlist dirs --project
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		configOnly, _ := cmd.Flags().GetBool("config")
		dataOnly, _ := cmd.Flags().GetBool("data")
		projectOnly, _ := cmd.Flags().GetBool("project")

		selected := 0
		for _, b := range []bool{configOnly, dataOnly, projectOnly} {
			if b {
				selected++
			}
		}
		if selected > 1 {
			return fmt.Errorf("specify at most one of --config, --data and --project")
		}

		out := cmd.OutOrStdout()
		configDir := filepath.Dir(config.GlobalConfig())
		dataDir := filepath.Dir(config.GlobalConfigData())
		switch {
		case configOnly:
			fmt.Fprintln(out, configDir)
			return nil
		case dataOnly:
			fmt.Fprintln(out, dataDir)
			return nil
		}

		cwd, _ := cmd.Flags().GetString("cwd")
		cwd, err := ResolveCwd(cwd)
		if err != nil {
			return err
		}
		cfg, err := config.Load(cwd, false)
		if err != nil {
			return err
		}
		if projectOnly {
			fmt.Fprintln(out, cfg.Options.DataDirectory)
			return nil
		}

		fmt.Fprintf(out, "Config directory:  %s\n", configDir)
		fmt.Fprintf(out, "Data directory:    %s\n", dataDir)
		fmt.Fprintf(out, "Project directory: %s\n", cfg.Options.DataDirectory)
		for _, p := range cfg.Paths() {
			fmt.Fprintf(out, "Config file:       %s\n", p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dirsCmd)
	dirsCmd.Flags().Bool("config", false, "Print only the config directory")
	dirsCmd.Flags().Bool("data", false, "Print only the data directory")
	dirsCmd.Flags().Bool("project", false, "Print only the project data directory")
}
