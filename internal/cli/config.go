package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/loadplan/internal/config"
)

// ConfigResult is the JSON payload of config show.
type ConfigResult struct {
	Path   string         `json:"path,omitempty"` // empty when only defaults and env apply
	Config *config.Config `json:"config"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect loadplan configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after applying defaults, the config file
(loadplan.yaml, discovered upward from the working directory or given by
--config) and LOADPLAN_* environment variables.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(rootOpts, cmd)
		},
	})

	return cmd
}

func runConfigShow(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	cfg := opts.settings()

	if formatter.Format == "json" {
		return formatter.Success(ConfigResult{Path: opts.ConfigFile, Config: cfg})
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render config", err)
	}
	if opts.ConfigFile != "" {
		fmt.Fprintf(formatter.Writer, "# %s\n", opts.ConfigFile)
	} else {
		fmt.Fprintln(formatter.Writer, "# defaults (no config file found)")
	}
	fmt.Fprint(formatter.Writer, string(data))
	return nil
}
