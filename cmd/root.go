package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/sw33tLie/stockfinder/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `     _             _     __ _           _
 ___| |_ ___   ___| | __/ _(_)_ __   __| | ___ _ __
/ __| __/ _ \ / __| |/ / |_| | '_ \ / _' |/ _ \ '__|
\__ \ || (_) | (__|   <|  _| | | | | (_| |  __/ |
|___/\__\___/ \___|_|\_\_| |_|_| |_|\__,_|\___|_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stockfinder",
	Short: "Hardware availability tracker for online stores.",
	Long: LOGO + `stockfinder scrapes the listing pages of configured stores, keeps a
catalogue of confirmed product availabilities and re-verifies discovered
or user-submitted product URLs before they reach the catalogue.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stockfinder.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("database", "", "", "SQLite file or postgres:// DSN (default: ~/.config/stockfinder/stockfinder.sqlite)")
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")

	viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag("http.proxy", rootCmd.PersistentFlags().Lookup("proxy"))
}

func setDefaults() {
	viper.SetDefault("database", "")
	viper.SetDefault("http.proxy", "")
	viper.SetDefault("http.retry_max", 2)
	viper.SetDefault("http.timeout", "30s")
	viper.SetDefault("reconcile.batch_limit", 5)
	viper.SetDefault("reconcile.min_delay", "10s")
	viper.SetDefault("reconcile.max_delay", "30s")
	viper.SetDefault("reconcile.batch_timeout", "2m")
	viper.SetDefault("stock.batch_size", 500)
	viper.SetDefault("scheduler.interval", "30m")
	viper.SetDefault("scheduler.full_every", 20)
	viper.SetDefault("scheduler.priority_categories", []string{"GPU"})
	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password_hash", "")
	viper.SetDefault("sources", []interface{}{})
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A missing .env is fine.
	_ = godotenv.Load()

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".stockfinder")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("STOCKFINDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".stockfinder.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		} else {
			fmt.Printf("Error reading config file: %s\n", err)
			os.Exit(1)
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
