package cmd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/stockfinder/internal/utils"
	"github.com/sw33tLie/stockfinder/pkg/catalog"
	"github.com/sw33tLie/stockfinder/pkg/reconcile"
	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/stockcheck"
	"github.com/sw33tLie/stockfinder/pkg/storage"
	"github.com/sw33tLie/stockfinder/pkg/upsert"
)

// scheduler drives one source forever: a priority stock check, a
// reconciliation tick and, every fullEvery iterations, a full stock check.
type scheduler struct {
	db         *storage.DB
	adapter    sources.Adapter
	engine     *upsert.Engine
	reconciler *reconcile.Reconciler
	priority   []string
	fullEvery  int
	interval   time.Duration
	minPause   time.Duration
	maxPause   time.Duration
	log        *logrus.Entry

	sleep func(ctx context.Context, d time.Duration) error
}

func newScheduler(db *storage.DB, reg *sources.Registry, adapter sources.Adapter) *scheduler {
	name := adapter.Source().Name
	log := sourceLogger(name)
	engine := upsert.NewEngine(db, log)
	rc := reconcileConfig(name)
	return &scheduler{
		db:         db,
		adapter:    adapter,
		engine:     engine,
		reconciler: reconcile.New(db, reg, engine, rc, log),
		priority:   priorityCategories(adapter, viper.GetStringSlice("scheduler.priority_categories")),
		fullEvery:  viper.GetInt("scheduler.full_every"),
		interval:   viper.GetDuration("scheduler.interval"),
		minPause:   rc.MinDelay,
		maxPause:   rc.MaxDelay,
		log:        log,
		sleep:      utils.Sleep,
	}
}

// priorityCategories keeps the configured categories the adapter lists.
func priorityCategories(a sources.Adapter, wanted []string) []string {
	listed := map[string]bool{}
	for _, c := range a.Categories() {
		listed[c] = true
	}
	var out []string
	for _, w := range wanted {
		if c, ok := catalog.ResolveCategory(w); ok && listed[c] {
			out = append(out, c)
		}
	}
	return out
}

func (s *scheduler) stock(ctx context.Context, categories []string) {
	res, err := stockcheck.Run(ctx, stockcheck.Config{
		Store:      s.db,
		Engine:     s.engine,
		Adapter:    s.adapter,
		Categories: categories,
		Log:        s.log,
	})
	if err != nil {
		s.log.Errorf("stock check failed: %v", err)
		return
	}
	s.log.Infof("stock check: %d records, %d updated, %d registered, %d queued, %d rejected",
		res.Records, res.Updated, res.Registered, res.Queued, res.Rejected)
}

func (s *scheduler) pause(ctx context.Context) error {
	return s.sleep(ctx, utils.RandomDelay(s.minPause, s.maxPause))
}

// iteration runs the n-th pass, counting from zero.
func (s *scheduler) iteration(ctx context.Context, n int) error {
	if len(s.priority) > 0 {
		s.stock(ctx, s.priority)
		if err := s.pause(ctx); err != nil {
			return err
		}
	}

	if _, err := s.reconciler.Tick(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Errorf("reconciliation tick: %v", err)
	}

	if n == 0 || (s.fullEvery > 0 && n%s.fullEvery == 0) {
		if err := s.pause(ctx); err != nil {
			return err
		}
		s.stock(ctx, nil)
	}
	return ctx.Err()
}

func (s *scheduler) loop(ctx context.Context) error {
	for n := 0; ; n++ {
		if err := s.iteration(ctx, n); err != nil {
			return err
		}
		s.log.Debugf("iteration %d done, sleeping %s", n, s.interval)
		if err := s.sleep(ctx, s.interval); err != nil {
			return err
		}
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Keep a source up to date: stock checks and reconciliation in a loop",
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
		adapter, err := reg.Get(name)
		if err != nil {
			return err
		}

		err = withSourceLock(dsn, adapter.Source().Name, func() error {
			return newScheduler(db, reg, adapter).loop(cmd.Context())
		})
		if cmd.Context().Err() != nil {
			utils.Log.Info("Interrupted, exiting.")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("source", "s", "", "Source name, as declared in the config file")
	runCmd.MarkFlagRequired("source")
}
