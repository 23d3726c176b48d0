package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aisanity/aisanity/internal/status"
)

var showCmd = &cobra.Command{
	Use:   "show <workflow>",
	Short: "Show a workflow's states and transitions",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := s.loader.GetWorkflow(args[0], s.workspace)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(out, w)
	}
	fmt.Fprint(out, status.FormatWorkflow(w, formatOptions(out)))
	return nil
}
