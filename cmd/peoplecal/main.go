package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"peoplecal/internal/config"
	appLog "peoplecal/internal/log"
)

var Version = "0.1.0-dev"

// state carries the loaded config from the root command to subcommands.
type state struct {
	configPath string
	logLevel   string
	dataDir    string
	cfg        *config.Config
}

func main() {
	err := newRootCmd().Execute()
	appLog.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &state{}

	root := &cobra.Command{
		Use:           "peoplecal",
		Short:         "Birthday and keep-in-touch reminders for your people",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.load()
		},
	}

	root.PersistentFlags().StringVar(&st.configPath, "config", config.DefaultPath(), "Path to config file")
	root.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR); overrides config")
	root.PersistentFlags().StringVar(&st.dataDir, "data-dir", "", "Data directory; overrides config")

	root.AddCommand(
		serveCmd(st),
		birthdaysCmd(st),
		contactsCmd(st),
		agendaCmd(st),
		addCmd(st),
		contactCmd(st),
		birthdayCmd(st),
		everyCmd(st),
		checkCmd(st),
		doneCmd(st),
		importCmd(st),
		exportCmd(st),
	)
	return root
}

func (st *state) load() error {
	cfg, err := config.Load(st.configPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", st.configPath, err)
	}
	if st.logLevel != "" {
		cfg.LogLevel = strings.ToUpper(st.logLevel)
	}
	if st.dataDir != "" {
		cfg.DataDir = st.dataDir
	}
	appLog.SetLevel(appLog.Level(cfg.LogLevel))
	appLog.Debug("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"data_dir", cfg.DataDir,
		"window_days", cfg.Reminders.WindowDays,
		"refresh", cfg.Tasks.Refresh,
		"imports", len(cfg.Imports),
	)
	st.cfg = cfg
	return nil
}
