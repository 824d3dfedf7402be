package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-resource-sync/entities"
)

func newAgentsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "Manage agents",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List agents",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				items, err := a.container.Agents().List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list agents: %w", err)
				}
				return a.print(items, "ID\tNAME\tALIAS\tMODEL", func(w io.Writer) {
					for _, item := range items {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.ID, item.Name, item.Alias, item.Model)
					}
				})
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show one agent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				agent, err := a.container.Agents().GetByID(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get agent: %w", err)
				}
				return a.print(agent, "ID\tNAME\tALIAS\tTOOLS", func(w io.Writer) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", agent.ID, agent.Name, agent.Alias, strings.Join(agent.Tools, ","))
				})
			},
		},
		newCreateAgentCommand(a),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete an agent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.container.Agents().Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete agent: %w", err)
				}
				fmt.Fprintf(a.out, "Deleted agent %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func newCreateAgentCommand(a *app) *cobra.Command {
	var manifest entities.AgentManifest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := a.container.Agents().Create(cmd.Context(), manifest)
			if err != nil {
				return fmt.Errorf("failed to create agent: %w", err)
			}
			return a.print(agent, "ID\tNAME\tALIAS", func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", agent.ID, agent.Name, agent.Alias)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&manifest.Name, "name", "", "agent name")
	flags.StringVar(&manifest.Description, "description", "", "agent description")
	flags.StringVar(&manifest.Prompt, "prompt", "", "system prompt")
	flags.StringVar(&manifest.Model, "model", "", "model identifier")
	flags.StringVar(&manifest.Alias, "alias", "", "alias used to invoke the agent")
	flags.StringSliceVar(&manifest.Tools, "tool", nil, "tool to enable, repeatable")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newWorkflowsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"workflow"},
		Short:   "Manage workflows",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List workflows",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				items, err := a.container.Workflows().List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list workflows: %w", err)
				}
				return a.print(items, "ID\tNAME\tALIAS\tSTEPS", func(w io.Writer) {
					for _, item := range items {
						fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", item.ID, item.Name, item.Alias, len(item.Steps))
					}
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a workflow",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.container.Workflows().Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete workflow: %w", err)
				}
				fmt.Fprintf(a.out, "Deleted workflow %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}
