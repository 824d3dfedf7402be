package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-resource-sync/action"
	"github.com/goliatone/go-resource-sync/entities"
)

type invokeArgs struct {
	slug   string
	prompt string
}

func newInvokeCommand(a *app) *cobra.Command {
	var (
		thread   string
		workflow bool
	)

	cmd := &cobra.Command{
		Use:   "invoke <slug> <prompt...>",
		Short: "Start an agent or workflow run",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoker := a.container.Invoker()
			run := action.New(func(ctx context.Context, in invokeArgs) (entities.InvokeResponse, error) {
				if workflow {
					return invoker.InvokeWorkflow(ctx, in.slug, in.prompt, thread)
				}
				return invoker.InvokeAgent(ctx, in.slug, in.prompt, thread)
			}).WithLogger(a.logger)

			resp, ok := run.Execute(cmd.Context(), invokeArgs{slug: args[0], prompt: strings.Join(args[1:], " ")})
			if !ok {
				return run.State().Err
			}
			return a.print(resp, "THREAD", func(w io.Writer) {
				fmt.Fprintln(w, resp.ThreadID)
			})
		},
	}
	cmd.Flags().StringVar(&thread, "thread", "", "continue an existing thread")
	cmd.Flags().BoolVar(&workflow, "workflow", false, "invoke a workflow instead of an agent")
	return cmd
}
