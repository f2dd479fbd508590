package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/vlist/internal/config"
	"github.com/charmbracelet/vlist/internal/log"
	"github.com/charmbracelet/vlist/internal/tui"
	"github.com/charmbracelet/vlist/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.Flags().BoolP("help", "h", false, "Help")
}

var rootCmd = &cobra.Command{
	Use:   "vlist",
	Short: "Scroll through millions of rows in the terminal",
	Long: heredoc.Doc(`
		vlist renders lists of any length by keeping only the rows on screen
		in memory. Rows come from a generated source, a SQLite database or a
		paginated JSON endpoint, and are loaded in chunks as you scroll.
	`),
	Example: heredoc.Doc(`
		# Browse a million generated rows
		vlist

		# Run with debug logging in a specific directory
		vlist -d -c /path/to/project

		# Browse a SQLite source after seeding it
		vlist seed --count 5000000
		vlist
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer log.RecoverPanic("main", nil)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		src, err := openSource(ctx, cfg)
		if err != nil {
			return err
		}
		defer src.Close()

		l, err := newList(cfg, src)
		if err != nil {
			return err
		}
		model := tui.New(l)
		defer model.Close()

		program := tea.NewProgram(
			model,
			tea.WithAltScreen(),
			tea.WithContext(ctx),
			tea.WithMouseCellMotion(),
		)

		err = cfg.Watch(ctx, func(*config.Config) {
			program.Send(tui.NoticeMsg("configuration changed, restart to apply"))
		})
		if err != nil {
			slog.Debug("Not watching configuration", "error", err)
		}

		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("vlist crashed: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// setupApp resolves the working directory, loads the configuration and
// starts logging into the data directory.
func setupApp(cmd *cobra.Command) (*config.Config, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	cwd, _ := cmd.Flags().GetString("cwd")

	cwd, err := ResolveCwd(cwd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Init(cwd, debug)
	if err != nil {
		return nil, err
	}

	if err := createDotVlistDir(cfg.Options.DataDirectory); err != nil {
		return nil, err
	}
	log.Setup(filepath.Join(cfg.Options.DataDirectory, "logs", "vlist.log"), cfg.Options.Debug)
	slog.Info("Starting vlist", "version", version.Version, "cwd", cfg.WorkingDir(), "source", cfg.Source.Type)
	return cfg, nil
}

// ResolveCwd returns the absolute form of cwd, or the process working
// directory when cwd is empty.
func ResolveCwd(cwd string) (string, error) {
	if cwd != "" {
		abs, err := filepath.Abs(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to resolve cwd %q: %w", cwd, err)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return "", fmt.Errorf("cwd %q is not a directory", cwd)
		}
		return abs, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	return cwd, nil
}

func createDotVlistDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %q %w", dir, err)
	}

	gitIgnorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitIgnorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitIgnorePath, []byte("*\n"), 0o644); err != nil {
			return fmt.Errorf("failed to create .gitignore file: %q %w", gitIgnorePath, err)
		}
	}
	return nil
}
