package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	aerrors "github.com/aisanity/aisanity/internal/errors"
	"github.com/aisanity/aisanity/internal/status"
	"github.com/aisanity/aisanity/internal/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate [workflow]",
	Short: "Validate the workflow definition file",
	Long: `Validate workflows without running them.

Checks:
- YAML syntax and unknown fields
- Required fields and timeouts
- Transition targets and the initial state
- Unreachable states and transition cycles
- Placeholder syntax and dangerous shell sequences in templates`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	opts := formatOptions(out)

	defs, err := s.loader.Load(s.workspace)
	if err != nil {
		var aerr *aerrors.AisanityError
		if !jsonOut && errors.As(err, &aerr) {
			if problems, ok := aerr.Detail("problems").([]string); ok && len(problems) > 1 {
				fmt.Fprintf(out, "%s: %d problems\n", s.loader.Path(s.workspace), len(problems))
				for _, p := range problems {
					fmt.Fprintf(out, "  ✗ %s\n", p)
				}
			}
		}
		return err
	}

	names := defs.Names()
	if len(args) == 1 {
		if _, err := s.loader.GetWorkflow(args[0], s.workspace); err != nil {
			return err
		}
		names = []string{args[0]}
	}

	reports := make([]*workflow.Report, 0, len(names))
	invalid := 0
	for _, name := range names {
		r := workflow.Inspect(defs.Workflows[name])
		if !r.Valid() {
			invalid++
		}
		reports = append(reports, r)
	}

	if jsonOut {
		if err := writeJSON(out, reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			fmt.Fprint(out, status.FormatReport(r, opts))
		}
	}

	if invalid > 0 {
		return aerrors.Validation("workflows", fmt.Sprintf("%d of %d workflows are invalid", invalid, len(reports)))
	}
	return nil
}
