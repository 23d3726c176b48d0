package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	aerrors "github.com/aisanity/aisanity/internal/errors"
	"github.com/aisanity/aisanity/internal/status"
	"github.com/aisanity/aisanity/internal/workflow"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List workflows in this workspace",
	Long: `List the workflows defined in the workspace's definition file.

A workspace without a definition file has no workflows.

Examples:
  aisanity ls
  aisanity ls --json
  aisanity ls -s        # Names only`,
	Args: cobra.NoArgs,
	RunE: runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

// workflowSummary is the JSON view of a listed workflow.
type workflowSummary struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	InitialState string `json:"initialState"`
	States       int    `json:"states"`
}

func runLs(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.Close()

	var workflows []*workflow.Workflow
	defs, err := s.loader.Load(s.workspace)
	switch {
	case aerrors.HasCode(err, aerrors.CodeFileMissing):
		s.logger.Debug("no definition file", "path", s.loader.Path(s.workspace))
	case err != nil:
		return err
	default:
		for _, name := range defs.Names() {
			workflows = append(workflows, defs.Workflows[name])
		}
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		list := make([]workflowSummary, 0, len(workflows))
		for _, w := range workflows {
			list = append(list, workflowSummary{
				Name:         w.Name,
				Description:  w.Description,
				InitialState: w.InitialState,
				States:       len(w.States),
			})
		}
		return writeJSON(out, list)
	}

	fmt.Fprint(out, status.FormatWorkflowList(workflows, formatOptions(out)))
	if len(workflows) > 0 && !silent {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Run: aisanity run <workflow> [state] [key=value...]")
	}
	return nil
}
