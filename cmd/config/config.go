package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"

	"github.com/sidkik/sftpsync/cmd/util"
	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout   io.Writer = os.Stdout
	newStore           = func() (*config.Store, error) {
		return config.NewStore(config.DefaultStoreDir)
	}
	promptYesOrNo = util.PromptYesOrNo
)

// New creates a new `config` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage saved sync configurations",
	}
	cmd.AddCommand(newSaveCommand(), newListCommand(), newShowCommand(), newDeleteCommand())
	return cmd
}

func newSaveCommand() *cobra.Command {
	var flags util.ConfigFlags
	cmd := &cobra.Command{
		Use:   "save NAME",
		Short: "Save the configuration built from the given flags under NAME",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := flags.Load(cmd)
			if err != nil {
				util.HandleFatalError(err)
			}

			if err := save(args[0], cfg); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	flags.RegisterSync(cmd)
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved configurations",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := list(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func newShowCommand() *cobra.Command {
	var showSecrets bool
	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Print a saved configuration",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := show(args[0], showSecrets); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print passwords instead of masking them.")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a saved configuration",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := deleteConfig(args[0], yes); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Don't ask for confirmation.")
	return cmd
}

func save(name string, cfg config.Config) error {
	store, err := newStore()
	if err != nil {
		return errors.WithContext(err, "open store")
	}

	saved, err := store.Save(name, cfg)
	if err != nil {
		return errors.WithContext(err, "save")
	}
	fmt.Fprintf(stdout, "Saved configuration %q\n", saved)
	return nil
}

func list() error {
	store, err := newStore()
	if err != nil {
		return errors.WithContext(err, "open store")
	}

	configs, err := store.List()
	if err != nil {
		return errors.WithContext(err, "list")
	}

	if len(configs) == 0 {
		fmt.Fprintln(stdout, "No saved configurations.")
		return nil
	}

	table := util.NewTable(stdout, []string{"Name", "Modified", "Path"})
	for _, c := range configs {
		table.Append([]string{c.Name, c.ModifiedAt.Local().Format(time.RFC822), c.Path})
	}
	table.Render()
	return nil
}

func show(name string, showSecrets bool) error {
	store, err := newStore()
	if err != nil {
		return errors.WithContext(err, "open store")
	}

	cfg, err := store.Load(name)
	if err != nil {
		return err
	}

	if !showSecrets {
		cfg = cfg.Redacted()
	}
	configBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}
	fmt.Fprint(stdout, string(configBytes))
	return nil
}

func deleteConfig(name string, yes bool) error {
	if !yes {
		confirmed, err := promptYesOrNo(fmt.Sprintf("Delete the saved configuration %q?", name))
		if err != nil {
			return errors.WithContext(err, "prompt")
		}
		if !confirmed {
			fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	store, err := newStore()
	if err != nil {
		return errors.WithContext(err, "open store")
	}

	if err := store.Delete(name); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Deleted configuration %q\n", name)
	return nil
}
