package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/stockfinder/internal/utils"
	"github.com/sw33tLie/stockfinder/pkg/reconcile"
	"github.com/sw33tLie/stockfinder/pkg/upsert"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation tick over the discovery queues",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("source")

		db, dsn, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg, err := buildRegistry(cmd.Context(), db)
		if err != nil {
			return err
		}
		if name != "" {
			if _, err := reg.Get(name); err != nil {
				return err
			}
		}

		var res *reconcile.TickResult
		locked := []string{name}
		if name == "" {
			locked = reg.Names()
		}
		err = withSourceLocks(dsn, locked, func() error {
			log := utils.Log.WithField("source", name)
			r := reconcile.New(db, reg, upsert.NewEngine(db, log), reconcileConfig(name), log)
			res, err = r.Tick(cmd.Context())
			return err
		})
		if res != nil {
			printTickResult(os.Stdout, res)
		}
		return err
	},
}

func printTickResult(out io.Writer, res *reconcile.TickResult) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "QUEUE\tPENDING\tPROCESSED\tINVALID\tRETRIED\tDEFERRED\tUNTOUCHED\t")
	for _, q := range []struct {
		name string
		c    reconcile.Counts
	}{{"channel", res.Channel}, {"user", res.User}} {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t\n", q.name, q.c.Pending, q.c.Processed,
			q.c.Invalid, q.c.Retried, q.c.Deferred, q.c.Untouched)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().StringP("source", "s", "", "Only reconcile entries of this source")
}
