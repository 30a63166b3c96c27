package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/sw33tLie/stockfinder/internal/utils"
	"github.com/sw33tLie/stockfinder/pkg/reconcile"
	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/sources/generic"
	"github.com/sw33tLie/stockfinder/pkg/storage"
	"github.com/sw33tLie/stockfinder/pkg/whttp"
)

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// GetDBConnectionString returns the configured DSN. SQLite paths are made
// absolute and their directory is created.
func GetDBConnectionString() (string, error) {
	dsn := viper.GetString("database")
	if isPostgres(dsn) {
		return dsn, nil
	}
	path, err := utils.GetAbsDBPath(dsn)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating database directory: %w", err)
	}
	return path, nil
}

func openDB() (*storage.DB, string, error) {
	dsn, err := GetDBConnectionString()
	if err != nil {
		return nil, "", err
	}
	db, err := storage.Open(dsn)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}
	db.SetBatchSize(viper.GetInt("stock.batch_size"))
	return db, dsn, nil
}

func newHTTPClient() (*retryablehttp.Client, error) {
	return whttp.NewClient(viper.GetString("http.proxy"), viper.GetInt("http.retry_max"), viper.GetDuration("http.timeout"))
}

func sourceLogger(name string) *logrus.Entry {
	return utils.Log.WithField("source", name)
}

// loadSourceConfigs reads the "sources" list of the config file.
func loadSourceConfigs() ([]generic.Config, error) {
	var cfgs []generic.Config
	if err := viper.UnmarshalKey("sources", &cfgs); err != nil {
		return nil, fmt.Errorf("reading sources config: %w", err)
	}
	return cfgs, nil
}

// buildRegistry creates one generic adapter per configured source, makes
// sure every source row exists and returns the registry.
func buildRegistry(ctx context.Context, db *storage.DB, extra ...sources.Adapter) (*sources.Registry, error) {
	cfgs, err := loadSourceConfigs()
	if err != nil {
		return nil, err
	}
	var client *retryablehttp.Client
	if len(cfgs) > 0 {
		if client, err = newHTTPClient(); err != nil {
			return nil, err
		}
	}

	adapters := append([]sources.Adapter{}, extra...)
	for _, c := range cfgs {
		a, err := generic.New(c, client, sourceLogger(c.Name))
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	reg, err := sources.NewRegistry(adapters...)
	if err != nil {
		return nil, err
	}
	for _, a := range adapters {
		src := a.Source()
		if err := db.EnsureSource(ctx, src.ID, src.Name); err != nil {
			return nil, fmt.Errorf("registering source %s: %w", src.Name, err)
		}
	}
	return reg, nil
}

func reconcileConfig(source string) reconcile.Config {
	return reconcile.Config{
		BatchLimit:   viper.GetInt("reconcile.batch_limit"),
		MinDelay:     viper.GetDuration("reconcile.min_delay"),
		MaxDelay:     viper.GetDuration("reconcile.max_delay"),
		BatchTimeout: viper.GetDuration("reconcile.batch_timeout"),
		Source:       source,
	}
}

// withSourceLock runs fn while holding the per-source file lock.
func withSourceLock(dsn, source string, fn func() error) error {
	return withSourceLocks(dsn, []string{source}, fn)
}

// withSourceLocks runs fn while holding the lock of every source. Locks are
// taken in name order so concurrent callers cannot deadlock.
func withSourceLocks(dsn string, names []string, fn func() error) error {
	names = append([]string(nil), names...)
	sort.Strings(names)
	var held []*utils.SourceLock
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Unlock(); err != nil {
				utils.Log.Warn(err)
			}
		}
	}()
	for _, name := range names {
		lock, err := utils.NewSourceLock(dsn, name)
		if err != nil {
			return err
		}
		if err := lock.Lock(); err != nil {
			return err
		}
		held = append(held, lock)
	}
	return fn()
}
