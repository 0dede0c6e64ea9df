package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/ghodss/yaml"
	"github.com/jonboulle/clockwork"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/sftpsync/cmd/util"
	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/fswatch"
	"github.com/sidkik/sftpsync/pkg/logging"
	"github.com/sidkik/sftpsync/pkg/session"
	"github.com/sidkik/sftpsync/pkg/sync"
	"github.com/sidkik/sftpsync/pkg/tasks"
)

// watchQuietPeriod is how long the local tree must be unchanged before a
// watch triggers another run.
const watchQuietPeriod = 2 * time.Second

// Mocked out for unit testing.
var (
	stdout      io.Writer = os.Stdout
	openSession           = session.Open
	openHistory           = func() (tasks.Store, error) {
		path, err := homedir.Expand(tasks.DefaultHistoryPath)
		if err != nil {
			return nil, errors.WithContext(err, "expand history path")
		}
		return tasks.OpenSQLite(path, clockwork.NewRealClock())
	}
)

type options struct {
	watch   bool
	history bool
	logFile string
}

// New creates a new `sync` command.
func New() *cobra.Command {
	var flags util.ConfigFlags
	var opts options
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror a local directory onto a remote server",
		Long: "Upload new and changed files from the local directory to the remote\n" +
			"directory. Files on the remote that are newer and the same size are\n" +
			"skipped. Nothing is ever downloaded.",
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := flags.Load(cmd)
			if err != nil {
				util.HandleFatalError(err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			if err := runSync(ctx, cfg, opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	flags.RegisterSync(cmd)
	cmd.Flags().BoolVar(&opts.watch, "watch", false,
		"Keep running, and sync again whenever local files change.")
	cmd.Flags().BoolVar(&opts.history, "history", false,
		"Record each run in the history database (see `sftpsync tasks`).")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "",
		"Append JSON formatted logs to this file.")
	return cmd
}

// runSync runs the sync described by `cfg`. It returns an error if any file
// failed to sync.
func runSync(ctx context.Context, cfg config.Config, opts options) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Verbose {
		if err := printConfig(cfg); err != nil {
			return errors.WithContext(err, "print config")
		}
	}

	if opts.logFile != "" {
		hook, err := logging.NewFileHook(opts.logFile, log.InfoLevel)
		if err != nil {
			return errors.WithContext(err, "set up log file")
		}
		defer hook.Close()
		log.AddHook(hook)
	}

	var history tasks.Store
	if opts.history {
		var err error
		history, err = openHistory()
		if err != nil {
			return errors.WithContext(err, "open history")
		}
		defer history.Close()
	}

	r := runner{cfg: cfg, history: history}
	report, err := r.run(ctx)
	if err != nil {
		return err
	}

	if opts.watch {
		return r.watch(ctx)
	}

	if report.Errors != 0 {
		return errors.NewFriendlyError("Sync finished with %d errors.", report.Errors)
	}
	return nil
}

type runner struct {
	cfg     config.Config
	history tasks.Store
}

// run opens a new session and syncs once. The outcome is recorded in the
// history, if it's enabled.
func (r runner) run(ctx context.Context) (sync.Report, error) {
	var taskID string
	if r.history != nil {
		task, err := r.history.Create(r.cfg.LocalDir, r.cfg.RemoteDir)
		if err != nil {
			return sync.Report{}, errors.WithContext(err, "record task")
		}
		taskID = task.ID
	}

	report, err := r.sync(ctx, taskID)
	if r.history != nil {
		if err := r.history.Finish(taskID, report.Stats, err); err != nil {
			log.WithError(err).Warn("Failed to record sync result")
		}
	}
	if err != nil {
		return report, err
	}

	util.PrintReport(stdout, report)
	return report, nil
}

func (r runner) sync(ctx context.Context, taskID string) (sync.Report, error) {
	sess, err := openSession(r.cfg.Connection)
	if err != nil {
		return sync.Report{}, errors.WithContext(err, "connect")
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.WithError(err).Debug("Failed to close session")
		}
	}()

	if r.history != nil {
		if err := r.history.Start(taskID); err != nil {
			return sync.Report{}, errors.WithContext(err, "record task start")
		}
	}

	syncer := sync.Syncer{
		Options: r.cfg.SyncOptions(),
		Remote:  sess,
	}
	return syncer.Run(ctx)
}

// watch runs a sync every time the local directory changes, until `ctx` is
// cancelled. Runs never overlap: changes made during a run trigger one more
// run after it finishes.
func (r runner) watch(ctx context.Context) error {
	matcher := sync.NewMatcher(r.cfg.IncludePatterns, r.cfg.ExcludePatterns)
	watcher, err := fswatch.Watch(r.cfg.LocalDir, matcher, watchQuietPeriod)
	if err != nil {
		return errors.WithContext(err, "watch local directory")
	}
	defer watcher.Close()

	log.WithField("path", r.cfg.LocalDir).Info("Watching for changes. Press Ctrl-C to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-watcher.Changes:
			if !ok {
				return errors.New("file watcher stopped unexpectedly")
			}

			log.Info("Local files changed. Syncing")
			if _, err := r.run(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.WithError(err).Error("Sync failed. Will retry on the next change")
			}
		}
	}
}

func printConfig(cfg config.Config) error {
	configBytes, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Configuration:\n%s\n", configBytes)
	return nil
}
