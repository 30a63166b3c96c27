package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/stockfinder/internal/utils"
	"github.com/sw33tLie/stockfinder/pkg/reconcile"
	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/sources/dev"
	"github.com/sw33tLie/stockfinder/pkg/stockcheck"
	"github.com/sw33tLie/stockfinder/pkg/storage"
	"github.com/sw33tLie/stockfinder/pkg/upsert"
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run a seeded end-to-end pass against the built-in dev source",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("dbpath")
		if path == "" {
			dir, err := os.MkdirTemp("", "stockfinder-dev")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			path = filepath.Join(dir, "dev.sqlite")
		}
		return runDevScenario(cmd.Context(), path, os.Stdout)
	},
}

// runDevScenario walks the seeded dev catalogue through a stock check, a
// user watch and one reconciliation tick, printing each step.
func runDevScenario(ctx context.Context, dsn string, out io.Writer) error {
	db, err := storage.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	shop := dev.Seeded()
	src := shop.Source()
	if err := db.EnsureSource(ctx, src.ID, src.Name); err != nil {
		return err
	}
	reg, err := sources.NewRegistry(shop)
	if err != nil {
		return err
	}

	log := sourceLogger(src.Name)
	engine := upsert.NewEngine(db, log)
	stock, err := stockcheck.Run(ctx, stockcheck.Config{Store: db, Engine: engine, Adapter: shop, Log: log})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "--> Stock check")
	printStockResult(out, stock)

	watched := "https://" + dev.SeedDomain + "/p/g-7800"
	id, err := db.EnqueueUserEntry(ctx, storage.UserEntry{URL: watched, UserID: 1, MaxPrice: 500, AlertByEmail: true})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n--> Watch %d queued for %s\n", id, watched)

	r := reconcile.New(db, reg, engine, reconcile.Config{}, utils.Log.WithField("tick", "dev"))
	tick, err := r.Tick(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\n--> Reconciliation tick", tick.ID)
	printTickResult(out, tick)

	fmt.Fprintln(out, "\n--> Database")
	return printStats(ctx, db, out)
}

func init() {
	rootCmd.AddCommand(devCmd)
	devCmd.Flags().String("dbpath", "", "Keep the dev database at this path (default: a temporary file)")
}
