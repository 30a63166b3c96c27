package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/stockfinder/pkg/storage"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Queue a product URL for a user's price alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		userID, _ := cmd.Flags().GetInt64("user")
		maxPrice, _ := cmd.Flags().GetFloat64("max-price")
		email, _ := cmd.Flags().GetBool("email")
		telegram, _ := cmd.Flags().GetBool("telegram")

		if userID <= 0 {
			return fmt.Errorf("--user must be a positive id")
		}
		if maxPrice <= 0 {
			return fmt.Errorf("--max-price must be positive")
		}

		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg, err := buildRegistry(cmd.Context(), db)
		if err != nil {
			return err
		}
		a, ok := reg.Resolve(url)
		if !ok {
			return fmt.Errorf("%s does not belong to any configured source", url)
		}

		id, err := db.EnqueueUserEntry(cmd.Context(), storage.UserEntry{
			URL:             url,
			UserID:          userID,
			MaxPrice:        maxPrice,
			AlertByEmail:    email,
			AlertByTelegram: telegram,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Queued entry %d for %s (%s)\n", id, url, a.Source().Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().String("url", "", "Product URL")
	watchCmd.Flags().Int64("user", 0, "User id")
	watchCmd.Flags().Float64("max-price", 0, "Alert when the price drops to this value")
	watchCmd.Flags().Bool("email", false, "Alert by email")
	watchCmd.Flags().Bool("telegram", false, "Alert by Telegram")
	watchCmd.MarkFlagRequired("url")
	watchCmd.MarkFlagRequired("user")
	watchCmd.MarkFlagRequired("max-price")
}
