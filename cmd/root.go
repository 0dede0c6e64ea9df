package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/sftpsync/cmd/config"
	"github.com/sidkik/sftpsync/cmd/login"
	"github.com/sidkik/sftpsync/cmd/serve"
	syncCmd "github.com/sidkik/sftpsync/cmd/sync"
	tasksCmd "github.com/sidkik/sftpsync/cmd/tasks"
	"github.com/sidkik/sftpsync/cmd/util"
	"github.com/sidkik/sftpsync/cmd/version"
	"github.com/sidkik/sftpsync/pkg/logging"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "SFTPSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "sftpsync",
		Short:        "One-way mirroring of a local directory to an SFTP server",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.SetSource(cmd.CalledAs())
		},
	}
	rootCmd.AddCommand(
		configCmd.New(),
		login.New(),
		serve.New(),
		syncCmd.New(),
		tasksCmd.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
