package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/store"
	"github.com/thatsimonsguy/minisplit-coordinator/system/startup"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show global mode, range and per-unit state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(false, func(st *store.Store) error {
				snap := st.Snapshot()
				out := cmd.OutOrStdout()

				fmt.Fprintf(out, "mode:      %s\n", snap.GlobalMode)
				fmt.Fprintf(out, "range:     %.1f-%.1f°F\n", snap.GlobalMinTemp, snap.GlobalMaxTemp)
				if snap.OutsideTemperature != nil {
					fmt.Fprintf(out, "outside:   %.1f°F\n", *snap.OutsideTemperature)
				}
				fmt.Fprintf(out, "conflicts: %d unresolved\n\n", snap.UnresolvedConflicts())

				ids := make([]string, 0, len(snap.Units))
				for id := range snap.Units {
					ids = append(ids, id)
				}
				sort.Strings(ids)

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "UNIT\tROOM\tONLINE\tMODE\tCURRENT\tTARGET\tPRIORITY\tOVERRIDE")
				for _, id := range ids {
					u := snap.Units[id]
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%.1f\t%.1f\t%d\t%t\n",
						u.ID, u.Room, u.IsOnline, u.Mode, u.CurrentTemperature, u.TargetTemperature, u.Priority, u.ManualOverrideActive)
				}
				return w.Flush()
			})
		},
	}
}

func (a *app) setRangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-range MIN MAX",
		Short: "Set the global comfort range in °F",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			min, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid MIN %q: %w", args[0], err)
			}
			max, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid MAX %q: %w", args[1], err)
			}
			return a.withStore(true, func(st *store.Store) error {
				if err := st.UpdateGlobalTemperatureRange(min, max); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Global range set to %.1f-%.1f°F\n", min, max)
				return nil
			})
		},
	}
}

func (a *app) setModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set-mode MODE",
		Short:     "Set the global mode (off, heat, cool); units follow on the next cycle",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(model.ModeOff), string(model.ModeHeat), string(model.ModeCool)},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := model.ParseMode(args[0])
			if err != nil {
				return err
			}
			return a.withStore(true, func(st *store.Store) error {
				changed, err := st.UpdateGlobalMode(mode, model.ReasonUserRequest, st.Snapshot().OutsideTemperature)
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintf(cmd.OutOrStdout(), "Global mode already %s\n", mode)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Global mode set to %s\n", mode)
				return nil
			})
		},
	}
}

func (a *app) conflictsCmd() *cobra.Command {
	var unresolved bool
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List recorded conflicts, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(false, func(st *store.Store) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "INDEX\tTIME\tKIND\tUNITS\tRESOLVED\tDESCRIPTION")
				for i, c := range st.Snapshot().Conflicts.Items() {
					if unresolved && c.Resolved {
						continue
					}
					resolved := "no"
					if c.Resolved {
						resolved = "yes: " + c.Resolution
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
						i, c.Timestamp.Local().Format(time.DateTime), c.Kind, strings.Join(c.AffectedUnitIDs, ","), resolved, c.Description)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&unresolved, "unresolved", false, "only show unresolved conflicts")
	return cmd
}

func (a *app) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve INDEX RESOLUTION",
		Short: "Mark a conflict resolved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid INDEX %q: %w", args[0], err)
			}
			return a.withStore(true, func(st *store.Store) error {
				if err := st.ResolveConflict(index, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Conflict %d resolved\n", index)
				return nil
			})
		},
	}
}

func (a *app) clearOverrideCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear-override [UNIT]",
		Short: "Clear the manual override on one unit or, with --all, every unit",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("pass either UNIT or --all, not both")
			}
			if !all && len(args) != 1 {
				return fmt.Errorf("requires a UNIT argument or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(true, func(st *store.Store) error {
				if all {
					n := st.ClearAllManualOverrides()
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d manual override(s)\n", n)
					return nil
				}
				if err := st.ClearManualOverride(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Manual override cleared for %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear overrides on every unit")
	return cmd
}

func (a *app) installServiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install-service",
		Short: "Write the systemd unit for the coordinator daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := startup.InstallService(a.cfg.Service, a.cfg.ConfigFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s; enable it with: systemctl enable --now %s\n",
				a.cfg.Service.UnitPath, filepath.Base(a.cfg.Service.UnitPath))
			return nil
		},
	}
}
