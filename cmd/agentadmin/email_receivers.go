package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-resource-sync/entities"
	"github.com/goliatone/go-resource-sync/service"
)

func newEmailReceiversCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "email-receivers",
		Aliases: []string{"email-receiver", "er"},
		Short:   "Manage email receivers",
	}
	cmd.AddCommand(
		newListEmailReceiversCommand(a),
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show one email receiver",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := a.container.EmailReceivers().GetByID(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get email receiver: %w", err)
				}
				return a.print(r, "ID\tNAME\tWORKFLOW\tADDRESS\tSENDERS", func(w io.Writer) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.WorkflowName, r.EmailAddress, strings.Join(r.AllowedSenders, ","))
				})
			},
		},
		newCreateEmailReceiverCommand(a),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete an email receiver",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.container.EmailReceivers().Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete email receiver: %w", err)
				}
				fmt.Fprintf(a.out, "Deleted email receiver %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func newListEmailReceiversCommand(a *app) *cobra.Command {
	var filters service.EmailReceiverFilters

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List email receivers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.container.EmailReceivers().Find(cmd.Context(), filters)
			if err != nil {
				return fmt.Errorf("failed to list email receivers: %w", err)
			}
			return a.print(items, "ID\tNAME\tWORKFLOW\tADDRESS", func(w io.Writer) {
				for _, r := range items {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.WorkflowName, r.EmailAddress)
				}
			})
		},
	}
	cmd.Flags().StringVar(&filters.TaskID, "task", "", "only receivers routed to this workflow")
	return cmd
}

func newCreateEmailReceiverCommand(a *app) *cobra.Command {
	var manifest entities.EmailReceiverManifest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an email receiver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.container.EmailReceivers().Create(cmd.Context(), manifest)
			if err != nil {
				return fmt.Errorf("failed to create email receiver: %w", err)
			}
			return a.print(r, "ID\tNAME\tWORKFLOW", func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Name, r.WorkflowName)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&manifest.Name, "name", "", "receiver name")
	flags.StringVar(&manifest.Description, "description", "", "receiver description")
	flags.StringVar(&manifest.User, "user", "", "mailbox user part")
	flags.StringVar(&manifest.WorkflowName, "workflow", "", "workflow receiving the mail")
	flags.StringSliceVar(&manifest.AllowedSenders, "allow", nil, "allowed sender address, repeatable")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}
