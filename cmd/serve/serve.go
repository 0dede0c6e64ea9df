package serve

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/sftpsync/cmd/util"
	"github.com/sidkik/sftpsync/pkg/api"
	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/session"
	"github.com/sidkik/sftpsync/pkg/tasks"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	host           string
	port           int
	allowedOrigins []string
	history        string
	configDir      string
}

// New creates a new `serve` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API for starting and tracking syncs",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			if err := Main(ctx, opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "127.0.0.1", "Address to listen on.")
	cmd.Flags().IntVar(&opts.port, "port", 8000, "Port to listen on.")
	cmd.Flags().StringSliceVar(&opts.allowedOrigins, "allow-origin", nil,
		"Browser origins allowed to call the API. Repeatable. \"*\" allows any origin.")
	cmd.Flags().StringVar(&opts.history, "history-file", "",
		"Persist tasks to this database. By default, tasks are kept in memory.")
	cmd.Flags().StringVar(&opts.configDir, "config-dir", config.DefaultStoreDir,
		"Directory for saved configurations.")
	return cmd
}

func Main(ctx context.Context, opts options) error {
	configStore, err := config.NewStore(opts.configDir)
	if err != nil {
		return errors.WithContext(err, "open config store")
	}

	var taskStore tasks.Store = tasks.NewMemoryStore(clockwork.NewRealClock())
	if opts.history != "" {
		path, err := homedir.Expand(opts.history)
		if err != nil {
			return errors.WithContext(err, "expand history path")
		}

		taskStore, err = tasks.OpenSQLite(path, clockwork.NewRealClock())
		if err != nil {
			return errors.WithContext(err, "open history")
		}
	}
	defer taskStore.Close()

	server := api.New(taskStore, configStore, session.Open, opts.allowedOrigins)
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(opts.host, strconv.Itoa(opts.port)),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Infof("Serving the API on http://%s/api", httpServer.Addr)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.WithContext(err, "serve")
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to shut down cleanly")
	}
	server.Shutdown()
	return nil
}
