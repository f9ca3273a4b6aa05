package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/config"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/logging"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/store"
)

var Commit string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	configFile string
	verbose    bool
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "coordctl",
		Short:         "Inspect and edit persisted coordinator state while the daemon is stopped",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.WarnLevel
			if a.verbose {
				level = zerolog.DebugLevel
			}
			logging.Init(level, "")

			cfg, err := config.LoadFile(a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config-file", "c", "config.json", "Path to coordinator config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		versionCmd(),
		a.statusCmd(),
		a.setRangeCmd(),
		a.setModeCmd(),
		a.conflictsCmd(),
		a.resolveCmd(),
		a.clearOverrideCmd(),
		a.installServiceCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Commit)
		},
	}
}

// withStore loads the persisted records, runs fn and saves when save is set.
func (a *app) withStore(save bool, fn func(*store.Store) error) error {
	backend, closeBackend, err := store.OpenBackend(a.cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	st := store.New(backend, store.WithOverrideTTL(a.cfg.ManualOverrideTTL()))
	st.Load()
	st.EnsureUnits(a.cfg.Units)

	if err := fn(st); err != nil {
		return err
	}
	if !save {
		return nil
	}
	if err := st.Save(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
