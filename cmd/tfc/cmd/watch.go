package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	internal "github.com/ZanzyTHEbar/track-folder-changes/tfc"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/config"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/db"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/ports"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/tracker"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/trees"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	watchSnapshot bool
	watchQuiet    bool
	watchJSON     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [folder]",
	Short: "Watch a folder and report changes until interrupted",
	Long: `Watch a folder and print every change as it happens. Without a folder the
configured watch.root is used, then the last watched folder, then the home
folder (the system drive on Windows).

Send SIGHUP to clear the tree and start over. On exit the change tree is
printed and, with --snapshot, saved to the snapshot database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchSnapshot, "snapshot", false, "Save the change tree to the snapshot database on exit")
	watchCmd.Flags().BoolVarP(&watchQuiet, "quiet", "q", false, "Do not print individual changes")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Log changes as JSON lines on stderr")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := config.NewSettings(internal.DefaultSettingsFile)
	if err != nil {
		return err
	}

	console := internal.GetConsoleLogger()
	if watchJSON {
		console = internal.GetLogger()
	}
	opts := []tracker.Option{
		tracker.WithSettings(settings),
		tracker.WithInteractor(ports.NewLogInteractor(console)),
	}
	if !watchQuiet {
		opts = append(opts, tracker.WithObserver(changeFeed(console)))
	}

	t := tracker.New(cfg.Watch, opts...)
	defer t.Close()

	if len(args) == 1 {
		if !t.TryChangeRoot(ctx, args[0]) {
			return fmt.Errorf("cannot watch %s", args[0])
		}
	} else if _, err := t.Restore(ctx); err != nil {
		return err
	}

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-hangup:
			if _, err := t.Refresh(ctx); err != nil {
				console.Error().Err(err).Msg("Refresh failed")
			}
		}
	}

	tree := t.Tree()
	if err := tree.Format(cmd.OutOrStdout()); err != nil {
		return err
	}

	m := tree.Metrics()
	console.Debug().
		Int64("entities", m.TotalEntities).
		Int("max_depth", m.MaxDepth).
		Dur("processing", m.ProcessingTime).
		Dur("uptime", m.Uptime).
		Interface("operations", m.OperationCounts).
		Msg("Tracker stopped")

	if watchSnapshot {
		return saveSnapshot(tree)
	}
	return nil
}

// changeFeed prints each applied change as one console line
func changeFeed(logger zerolog.Logger) trees.Observer {
	return trees.ObserverFunc(func(n trees.Notification) {
		switch n.Op {
		case trees.OpApply:
			event := logger.Info().Str("change", n.Event.Type.String())
			if n.Event.OldPath != "" {
				event = event.Str("from", n.Event.OldPath)
			}
			event.Msg(n.Event.Path)
		case trees.OpInitialize, trees.OpReset:
			logger.Info().Str("root", n.Entity.Path).Msg("Tree cleared")
		}
	})
}

func saveSnapshot(tree *trees.ChangeTree) error {
	store, err := db.NewSnapshotStore(cfg.Snapshots.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	// the watch context is already cancelled at this point
	snapshot, err := store.Save(context.Background(), tree.RootPath(), tree.Entities())
	if err != nil {
		return err
	}

	fmt.Printf("Snapshot saved: %s (%d changed)\n", snapshot.ID, snapshot.Changed)
	return nil
}
