package commands

import (
	"fmt"
	"io"

	"github.com/gandaldf/qx/internal/querydef"
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <definition.yaml>...",
		Short: "Check query definitions",
		Long:  "Load, resolve and bind every given query definition and report the ones that fail",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), args)
		},
	}
}

func runCheck(w io.Writer, paths []string) error {
	failed := 0
	for _, path := range paths {
		if err := checkDefinition(path); err != nil {
			failed++
			failColor.Fprint(w, "✗ ")
			fmt.Fprintf(w, "%s: %v\n", path, err)
			continue
		}
		okColor.Fprint(w, "✓ ")
		fmt.Fprintln(w, path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d definitions failed", failed, len(paths))
	}
	return nil
}

func checkDefinition(path string) error {
	def, err := querydef.Load(path)
	if err != nil {
		return err
	}
	q, err := def.Resolve(nil)
	if err != nil {
		return err
	}
	_, _, err = q.Args()
	return err
}
