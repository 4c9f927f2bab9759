package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"marketbrief/backend-go/internal/services"
)

const defaultFallbackPath = "internal/services/fallback_tables.yaml"

func newRefreshFallbackCmd() *cobra.Command {
	var (
		out    string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "refresh-fallback",
		Short: "Fetch live rows and rewrite the static fallback tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(prometheus.NewRegistry())
			if err != nil {
				return err
			}

			tables, err := services.ReadFallbackFile(out)
			if errors.Is(err, fs.ErrNotExist) {
				tables, err = services.LoadFallbackTables()
			}
			if err != nil {
				return err
			}

			updated := 0
			w := cmd.OutOrStdout()
			for _, cat := range a.board.Categories() {
				if len(cat.Sources) == 0 {
					continue
				}
				rows, source, err := a.board.Refresh(cmd.Context(), cat.Key)
				if err != nil {
					fmt.Fprintf(w, "%s: kept previous table (%v)\n", cat.Key, err)
					continue
				}
				tables[cat.Key] = rows
				updated++
				fmt.Fprintf(w, "%s (%s):\n", cat.Key, source)
				for _, r := range rows {
					fmt.Fprintf(w, "  %s: %s (%s)\n", r.Label, r.Value, r.Change)
				}
			}

			if updated == 0 {
				return errors.New("every live source failed, tables unchanged")
			}
			if dryRun {
				return nil
			}
			body, err := tables.Marshal(a.board.Now().In(a.cfg.Location()))
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(w, "wrote %d updated tables to %s\n", updated, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", defaultFallbackPath, "fallback tables file to rewrite")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the collected rows without writing")
	return cmd
}
