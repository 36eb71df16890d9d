package cmd

import (
	"fmt"

	"github.com/ZanzyTHEbar/track-folder-changes/tfc/filesystem/shell"

	"github.com/spf13/cobra"
)

var (
	openLocation bool
	openLaunch   bool
)

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open a tracked entry with the default application",
	Long: `Open a folder, or the folder holding a file. With --launch an existing
file is opened with its default application instead. With --location the
folder holding the entry is opened; for entries that no longer exist the
nearest existing folder above them is used.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := shell.New(nil)
		switch {
		case openLocation:
			return s.OpenLocation(args[0])
		case openLaunch:
			return s.Open(args[0])
		}
		return s.OpenItem(args[0])
	},
}

var copyPathCmd = &cobra.Command{
	Use:   "copy-path <path>",
	Short: "Print a path quoted for pasting into a shell",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), shell.QuotedPath(args[0]))
		return nil
	},
}

func init() {
	openCmd.Flags().BoolVarP(&openLocation, "location", "l", false, "Open the containing folder")
	openCmd.Flags().BoolVar(&openLaunch, "launch", false, "Open the entry itself with its default application")
	openCmd.MarkFlagsMutuallyExclusive("location", "launch")
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(copyPathCmd)
}
