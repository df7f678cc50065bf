package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/fatih/color"
	"github.com/gandaldf/qx"
	"github.com/gandaldf/qx/internal/querydef"
	"github.com/spf13/cobra"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen, color.Bold)
	failColor   = color.New(color.FgRed, color.Bold)
)

type resolveOptions struct {
	dialect    string
	set        []string
	positional bool
	json       bool
	verbose    bool
}

// resolveOutput is the --json document.
type resolveOutput struct {
	Name    string         `json:"name"`
	Dialect string         `json:"dialect"`
	SQL     string         `json:"sql"`
	Params  map[string]any `json:"params,omitempty"`
	Args    []any          `json:"args,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	opts := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve <definition.yaml>",
		Short: "Resolve a query definition",
		Long:  "Resolve the template of a YAML query definition and print the SQL with its bind parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dialect, "dialect", "d", "", "Override the dialect (postgres, mysql, sqlite, sqlserver)")
	cmd.Flags().StringArrayVarP(&opts.set, "set", "s", nil, "Override a field value (name=value, repeatable)")
	cmd.Flags().BoolVarP(&opts.positional, "positional", "p", false, "Render positional placeholders and args")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log every pipeline stage to stderr")

	return cmd
}

func runResolve(out, errOut io.Writer, path string, opts *resolveOptions) error {
	def, err := querydef.Load(path)
	if err != nil {
		return err
	}
	if opts.dialect != "" {
		if def.Dialect, err = qx.ParseDialect(opts.dialect); err != nil {
			return err
		}
	}
	if err := def.SetAll(opts.set); err != nil {
		return err
	}

	q, err := def.Resolve(newLogger(errOut, opts.verbose))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", def.QueryName(), err)
	}

	result := resolveOutput{
		Name:    def.QueryName(),
		Dialect: def.Dialect.String(),
		SQL:     q.SQL,
		Params:  q.Params,
	}
	if opts.positional {
		sql, args, err := q.Args()
		if err != nil {
			return fmt.Errorf("bind %s: %w", def.QueryName(), err)
		}
		result.SQL, result.Params, result.Args = sql, nil, args
	}

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(out, result)
	return nil
}

func printResult(w io.Writer, r resolveOutput) {
	headerColor.Fprintf(w, "-- %s (%s)\n", r.Name, r.Dialect)
	fmt.Fprintln(w, r.SQL)
	if len(r.Params) > 0 {
		headerColor.Fprintln(w, "-- params")
		names := make([]string, 0, len(r.Params))
		for name := range r.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "@%s = %#v\n", name, r.Params[name])
		}
	}
	if len(r.Args) > 0 {
		headerColor.Fprintln(w, "-- args")
		for i, a := range r.Args {
			fmt.Fprintf(w, "%d = %#v\n", i+1, a)
		}
	}
}

// newLogger returns a debug text logger on w, or nil to discard.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	if !verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
