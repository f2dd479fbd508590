package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/vlist/internal/adapter/sqlite"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the SQLite source with generated rows",
	Long: heredoc.Doc(`
		Replace the rows of the SQLite source with generated records. The
		generator honours source.seed, so the same seed always yields the same
		rows. Set source.type to "sqlite" to browse the result.
	`),
	Example: heredoc.Doc(`
		# Seed a million rows into the configured database
		vlist seed

		# Seed five million rows
		vlist seed --count 5000000
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setupApp(cmd)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")
		if count <= 0 {
			count = cfg.Source.Total
		}

		ctx := cmd.Context()
		conn, err := sqlite.Connect(ctx, cfg.Options.DataDirectory, cfg.Source.Database)
		if err != nil {
			return err
		}
		defer conn.Close()

		gen := generator(cfg, count)
		start := time.Now()
		out := cmd.OutOrStdout()
		err = sqlite.New(conn).Seed(ctx, gen, count, func(done int) {
			fmt.Fprintf(out, "\rSeeded %s of %s rows", humanize.Comma(int64(done)), humanize.Comma(int64(count)))
		})
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("failed to seed: %w", err)
		}
		slog.Info("Seeded sqlite source", "rows", count, "took", time.Since(start))
		fmt.Fprintf(out, "Seeded %s rows in %s\n", humanize.Comma(int64(count)), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().Int("count", 0, "Number of rows to generate (defaults to source.total)")
}
