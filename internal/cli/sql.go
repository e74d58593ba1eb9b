package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/loadplan/internal/loader"
	"github.com/roach88/loadplan/internal/store"
)

// SQLResult is the JSON payload of the sql command.
type SQLResult struct {
	Serializer string        `json:"serializer"`
	Dialect    string        `json:"dialect"`
	Steps      []loader.Step `json:"steps"`
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sql <specs-dir> <serializer>",
		Short: "Print the statements a serializer's plan issues",
		Long: `Print one statement per select-tree level, in the order they run
when a collection is rendered. Nested levels show a single placeholder
for the parent keys. Statements are built for the configured
database.driver; nothing is executed.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runSQL(opts *RootOptions, specsDir, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	ws, err := loadWorkspace(opts, formatter, specsDir)
	if err != nil {
		return err
	}
	node, err := ws.builder.Build(name)
	if err != nil {
		return outputError(formatter, ErrCodePlan, err)
	}

	db := opts.settings().Database
	st, err := store.Open(cmd.Context(), store.Options{
		Driver: db.Driver,
		DSN:    db.DSN,
		Logger: opts.log(),
	})
	if err != nil {
		return outputError(formatter, ErrCodeStore, err)
	}
	defer st.Close()

	bridge := loader.NewBridge(st, ws.registry.Catalog(), loader.WithLogger(opts.log()))
	steps, err := bridge.Explain(node.Entity, node)
	if err != nil {
		return outputError(formatter, ErrCodePlan, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(SQLResult{
			Serializer: name,
			Dialect:    string(st.Dialect()),
			Steps:      steps,
		})
	}

	for i, step := range steps {
		path := step.Path
		if path == "" {
			path = "(root)"
		}
		fmt.Fprintf(formatter.Writer, "-- [%d] %s → %s\n%s;\n", i+1, path, step.Entity, step.SQL)
	}
	return nil
}
