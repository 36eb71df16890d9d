package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ZanzyTHEbar/track-folder-changes/tfc/db"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/trees"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var snapshotsRoot string

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect saved change trees",
	Long:  `List, show and delete change trees saved with 'tfc watch --snapshot'.`,
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *db.SnapshotStore) error {
			snapshots, err := store.List(ctx)
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				fmt.Println("No snapshots saved.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTAKEN\tCHANGED\tROOT")
			for _, s := range snapshots {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.TakenAt.Local().Format(time.DateTime), s.Changed, s.Root)
			}
			return w.Flush()
		})
	},
}

var snapshotsShowCmd = &cobra.Command{
	Use:   "show [snapshot-id]",
	Short: "Print a saved change tree (latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *db.SnapshotStore) error {
			var (
				snapshot *db.Snapshot
				err      error
			)
			if len(args) == 1 {
				id, parseErr := uuid.Parse(args[0])
				if parseErr != nil {
					return fmt.Errorf("invalid snapshot id %q: %w", args[0], parseErr)
				}
				snapshot, err = store.Get(ctx, id)
			} else {
				snapshot, err = store.Latest(ctx, snapshotsRoot)
			}
			if err != nil {
				return err
			}

			fmt.Printf("# %s  %s  %d changed\n", snapshot.ID, snapshot.TakenAt.Local().Format(time.DateTime), snapshot.Changed)
			return trees.FormatEntities(cmd.OutOrStdout(), snapshot.Entities)
		})
	},
}

var snapshotsDeleteCmd = &cobra.Command{
	Use:   "delete <snapshot-id>",
	Short: "Delete a saved snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid snapshot id %q: %w", args[0], err)
		}
		return withStore(func(ctx context.Context, store *db.SnapshotStore) error {
			if err := store.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Printf("✓ Snapshot deleted: %s\n", id)
			return nil
		})
	},
}

func init() {
	snapshotsShowCmd.Flags().StringVar(&snapshotsRoot, "root", "", "Show the latest snapshot of this root")

	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsShowCmd)
	snapshotsCmd.AddCommand(snapshotsDeleteCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

func withStore(fn func(ctx context.Context, store *db.SnapshotStore) error) error {
	store, err := db.NewSnapshotStore(cfg.Snapshots.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return fn(ctx, store)
}
