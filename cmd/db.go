package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/stockfinder/pkg/storage"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the stockfinder database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := GetDBConnectionString()
		if err != nil {
			return err
		}
		client, clientArgs := "sqlite3", []string{dsn}
		if isPostgres(dsn) {
			client = "psql"
		}

		if !isPostgres(dsn) {
			if _, err := os.Stat(dsn); os.IsNotExist(err) {
				return fmt.Errorf("database file not found: %s", dsn)
			}
		}

		// Check if the client is in PATH
		clientPath, err := exec.LookPath(client)
		if err != nil {
			return fmt.Errorf("%s command not found in your PATH. Please install it to use the db shell", client)
		}

		fmt.Println("--> Starting interactive shell... (Ctrl+D to exit)")
		c := exec.Command(clientPath, clientArgs...)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about sources, availabilities and queues in the database.",
	Long:  "Prints statistics about sources, availabilities and queues in the database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return printStats(cmd.Context(), db, os.Stdout)
	},
}

func printStats(ctx context.Context, db *storage.DB, out io.Writer) error {
	stats, err := db.GetStats(ctx)
	if err != nil {
		return err
	}
	channel, user, err := db.GetQueueStats(ctx)
	if err != nil {
		return err
	}

	if len(stats) == 0 {
		fmt.Fprintln(out, "No sources in the database to generate stats.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SOURCE\tAVAILABILITIES\tIN-STOCK\tALERTS\t")

	var totalAvail, totalInStock, totalAlerts int
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t\n", s.Source, s.Availabilities, s.InStock, s.Alerts)
		totalAvail += s.Availabilities
		totalInStock += s.InStock
		totalAlerts += s.Alerts
	}

	fmt.Fprintln(w, " \t \t \t \t")
	fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t\n", totalAvail, totalInStock, totalAlerts)
	fmt.Fprintln(w, " \t \t \t \t")
	fmt.Fprintln(w, "QUEUE\tPENDING\tPROCESSED\tINVALID\t")
	fmt.Fprintf(w, "channel\t%d\t%d\t%d\t\n", channel.Pending, channel.Processed, channel.Invalid)
	fmt.Fprintf(w, "user\t%d\t%d\t%d\t\n", user.Pending, user.Processed, user.Invalid)

	return w.Flush()
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
}
