package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/loadplan/internal/ir"
)

// Plan command error code.
const ErrCodePlan = "E_PLAN"

// PlanResult is the JSON payload of the plan command.
type PlanResult struct {
	Serializer string          `json:"serializer"`
	Entity     string          `json:"entity"`
	IRVersion  string          `json:"ir_version"`
	Hash       string          `json:"hash"`
	Plan       json.RawMessage `json:"plan"` // canonical select tree
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <specs-dir> <serializer>",
		Short: "Print the select tree a serializer needs",
		Long: `Build the select tree for a serializer: the columns fetched at each
level and the associations eager-loaded beneath it.

Examples:
  loadplan plan ./specs BlogSerializer
  loadplan plan ./specs Admin.PostSerializer --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runPlan(opts *RootOptions, specsDir, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	ws, err := loadWorkspace(opts, formatter, specsDir)
	if err != nil {
		return err
	}

	node, err := ws.builder.Build(name)
	if err != nil {
		return outputError(formatter, ErrCodePlan, err)
	}
	hash, err := ir.PlanHash(node)
	if err != nil {
		return outputError(formatter, ErrCodePlan, err)
	}

	if formatter.Format == "json" {
		canonical, err := ir.MarshalCanonical(node.Snapshot())
		if err != nil {
			return outputError(formatter, ErrCodePlan, err)
		}
		return formatter.Success(PlanResult{
			Serializer: name,
			Entity:     node.Entity,
			IRVersion:  ir.IRVersion,
			Hash:       hash,
			Plan:       canonical,
		})
	}

	fmt.Fprintf(formatter.Writer, "%s → %s (plan %s)\n", name, node.Entity, hash[:12])
	writePlanTree(formatter.Writer, node, 0)
	return nil
}

// writePlanTree prints one level per line pair, indenting includes.
func writePlanTree(w io.Writer, node *ir.SelectNode, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%sselect: %s\n", indent, strings.Join(node.Select(), ", "))
	if len(node.Skip) > 0 {
		fmt.Fprintf(w, "%sskip: %s\n", indent, strings.Join(node.Skip, ", "))
	}
	for _, name := range node.IncludeNames() {
		child := node.Includes[name]
		label := name + " → " + child.Entity
		if child.IsIDsOnly() {
			label += " [ids]"
		}
		fmt.Fprintf(w, "%s%s\n", indent, label)
		if child.IsIDsOnly() {
			continue
		}
		writePlanTree(w, child, depth+1)
	}
}
