package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newChatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage saved chats",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the chats of a session, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			chats, err := newClient().ListChats(cmd.Context(), sessionID(cmd).String())
			if err != nil {
				return err
			}
			for _, c := range chats {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c.ID, c.CreatedAt, c.Title)
			}
			return nil
		},
	})

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			chat, err := newClient().CreateChat(cmd.Context(), sessionID(cmd).String(), title)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), chat.ID)
			return nil
		},
	}
	createCmd.Flags().String("title", "", "Chat title")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete one chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().DeleteChat(cmd.Context(), sessionID(cmd).String(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every chat of the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().ClearSession(cmd.Context(), sessionID(cmd).String())
		},
	})

	return cmd
}
