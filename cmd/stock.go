package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/stockfinder/internal/utils"
	"github.com/sw33tLie/stockfinder/pkg/polling"
	"github.com/sw33tLie/stockfinder/pkg/stockcheck"
	"github.com/sw33tLie/stockfinder/pkg/upsert"
)

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Scrape listing pages and refresh prices and stock",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("source")
		all, _ := cmd.Flags().GetBool("all")
		categories, _ := cmd.Flags().GetStringSlice("category")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		if (name == "") == !all {
			return errors.New("pass either --source or --all")
		}

		db, dsn, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg, err := buildRegistry(cmd.Context(), db)
		if err != nil {
			return err
		}

		if all {
			res, err := polling.StockAll(cmd.Context(), polling.Config{
				Adapters:    reg.Adapters(),
				Store:       db,
				Engine:      upsert.NewEngine(db, utils.Log),
				Concurrency: concurrency,
				Log:         utils.Log,
				Lock: func(source string) (func(), error) {
					lock, err := utils.NewSourceLock(dsn, source)
					if err != nil {
						return nil, err
					}
					if err := lock.Lock(); err != nil {
						return nil, err
					}
					return func() { lock.Unlock() }, nil
				},
			})
			if res != nil {
				for _, r := range res.Sources {
					printStockResult(os.Stdout, r)
				}
				err = errors.Join(append(res.Errors, err)...)
			}
			return err
		}

		adapter, err := reg.Get(name)
		if err != nil {
			return err
		}

		var res *stockcheck.Result
		err = withSourceLock(dsn, adapter.Source().Name, func() error {
			log := sourceLogger(adapter.Source().Name)
			res, err = stockcheck.Run(cmd.Context(), stockcheck.Config{
				Store:      db,
				Engine:     upsert.NewEngine(db, log),
				Adapter:    adapter,
				Categories: categories,
				Log:        log,
			})
			return err
		})
		if res != nil {
			printStockResult(os.Stdout, res)
		}
		return err
	},
}

func printStockResult(out io.Writer, res *stockcheck.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SOURCE\tCATEGORIES\tRECORDS\tUPDATED\tREGISTERED\tQUEUED\tREJECTED\tFAILED\t")
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n", res.Source, res.Categories, res.Records,
		res.Updated, res.Registered, res.Queued, res.Rejected, res.Failed)
	w.Flush()
}

func init() {
	rootCmd.AddCommand(stockCmd)
	stockCmd.Flags().StringP("source", "s", "", "Source name, as declared in the config file")
	stockCmd.Flags().BoolP("all", "a", false, "Check every configured source concurrently")
	stockCmd.Flags().StringSliceP("category", "c", nil, "Categories to check with --source (default: every category the source lists)")
	stockCmd.Flags().Int("concurrency", 3, "Number of sources checked at once with --all")
}
