package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-resource-sync/config"
	"github.com/goliatone/go-resource-sync/pkg/di"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	baseURL    string
	token      string
	output     string

	out       io.Writer
	logger    *zap.Logger
	container *di.Container
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	cmd := &cobra.Command{
		Use:           "agentadmin",
		Short:         "Manage agents, workflows and email receivers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./agentadmin.yaml or $HOME/.agentadmin/agentadmin.yaml)")
	flags.StringVar(&a.baseURL, "base-url", "", "API base URL, overrides api.base_url")
	flags.StringVar(&a.token, "token", "", "API token, overrides api.token")
	flags.StringVarP(&a.output, "output", "o", "table", "output format (table or json)")

	cmd.SetOut(out)
	cmd.AddCommand(
		newAgentsCommand(a),
		newWorkflowsCommand(a),
		newEmailReceiversCommand(a),
		newInvokeCommand(a),
	)
	return cmd
}

func (a *app) setup() error {
	switch a.output {
	case "table", "json":
	default:
		return fmt.Errorf("unknown output format %q", a.output)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.baseURL != "" {
		cfg.API.BaseURL = a.baseURL
	}
	if a.token != "" {
		cfg.API.Token = a.token
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.logger = logger

	container, err := di.NewContainer(cfg, di.WithLogger(logger))
	if err != nil {
		return err
	}
	a.container = container
	return nil
}

// print writes v as JSON, or as a table through rows when the output
// format is table.
func (a *app) print(v any, header string, rows func(w io.Writer)) error {
	if a.output == "json" {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header)
	rows(w)
	return w.Flush()
}
