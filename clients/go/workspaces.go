package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

func newWorkspacesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspaces",
		Aliases: []string{"ws"},
		Short:   "List and manage workspaces",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.client.ListWorkspaces(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No workspaces yet. Create one with `collab workspaces create <name>`.")
				return nil
			}
			for _, ws := range list {
				fmt.Printf("  %s  %s (%d members, %d msgs)\n", ws.ID, ws.Name, len(ws.Members), ws.MessageCount)
			}
			return nil
		},
	}

	var description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a workspace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.client.CreateWorkspace(cmd.Context(), strings.Join(args, " "), description)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s (%s)\n", ws.Name, ws.ID)
			return nil
		},
	}
	create.Flags().StringVar(&description, "description", "", "workspace description")

	addMember := &cobra.Command{
		Use:   "add-member <workspace-id> <user-id>",
		Short: "Add a user to a workspace you own",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.client.AddMember(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("%s now has %d members\n", ws.Name, len(ws.Members))
			return nil
		},
	}

	cmd.AddCommand(create, addMember)
	return cmd
}

func newReadCmd(a *app) *cobra.Command {
	var limit int
	var before, beforeID string
	cmd := &cobra.Command{
		Use:   "read <workspace-id>",
		Short: "Print a page of a workspace's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cutoff models.Cursor
			if before != "" {
				t, err := time.Parse(time.RFC3339, before)
				if err != nil {
					return fmt.Errorf("--before: %w", err)
				}
				cutoff = models.Cursor{CreatedAt: t, ID: beforeID}
			} else if beforeID != "" {
				return errors.New("--before-id requires --before")
			}
			msgs, err := a.client.GetMessagesPage(cmd.Context(), args[0], limit, cutoff)
			if err != nil {
				return err
			}
			for _, msg := range msgs {
				fmt.Println(formatMessage(msg))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of messages")
	cmd.Flags().StringVar(&before, "before", "", "only messages before this RFC 3339 time")
	cmd.Flags().StringVar(&beforeID, "before-id", "", "with --before, also include messages of that time sorting before this id")
	return cmd
}

func formatMessage(msg models.Message) string {
	return fmt.Sprintf("[%s] %s: %s", msg.CreatedAt.Local().Format("2006-01-02 15:04:05"), msg.Sender.Username, msg.Content)
}
