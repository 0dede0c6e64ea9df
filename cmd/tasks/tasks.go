package tasks

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/buger/goterm"
	"github.com/jonboulle/clockwork"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/sidkik/sftpsync/cmd/util"
	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/tasks"
)

// Mocked out for unit testing.
var (
	stdout      io.Writer = os.Stdout
	openHistory           = func(path string) (tasks.Store, error) {
		return tasks.OpenSQLite(path, clockwork.NewRealClock())
	}
	expandPath = homedir.Expand
)

// New creates a new `tasks` command.
func New() *cobra.Command {
	var path string
	var limit int
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List syncs recorded with `sftpsync sync --history`",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := Main(path, limit); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&path, "history-file", tasks.DefaultHistoryPath, "Path to the history database.")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most this many runs. 0 shows all of them.")
	return cmd
}

func Main(path string, limit int) error {
	path, err := expandPath(path)
	if err != nil {
		return errors.WithContext(err, "expand path")
	}

	store, err := openHistory(path)
	if err != nil {
		return errors.WithContext(err, "open history")
	}
	defer store.Close()

	list, err := store.List()
	if err != nil {
		return errors.WithContext(err, "list tasks")
	}

	if len(list) == 0 {
		fmt.Fprintln(stdout, "No recorded syncs.")
		return nil
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	table := util.NewTable(stdout, []string{"ID", "Status", "Started", "Duration",
		"Uploaded", "Skipped", "Deleted", "Errors", "Local", "Remote"})
	for _, task := range list {
		table.Append([]string{
			shortID(task.ID),
			statusString(task),
			task.CreatedAt.Local().Format(time.RFC822),
			durationString(task),
			strconv.Itoa(task.Stats.Uploaded),
			strconv.Itoa(task.Stats.Skipped),
			strconv.Itoa(task.Stats.Deleted),
			strconv.Itoa(task.Stats.Errors),
			task.LocalDir,
			task.RemoteDir,
		})
	}
	table.Render()
	return nil
}

func statusString(task tasks.Task) string {
	switch task.Status {
	case tasks.Completed:
		if task.Stats.Errors != 0 {
			return goterm.Color(string(task.Status), goterm.YELLOW)
		}
		return goterm.Color(string(task.Status), goterm.GREEN)
	case tasks.Failed:
		return goterm.Color(string(task.Status), goterm.RED)
	default:
		return string(task.Status)
	}
}

func durationString(task tasks.Task) string {
	if task.StartedAt == nil || task.CompletedAt == nil {
		return "-"
	}
	return task.CompletedAt.Sub(*task.StartedAt).Round(time.Millisecond).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
