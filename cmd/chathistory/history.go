package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"chathistory/internal/chat"
	"chathistory/internal/clientstore"
	"chathistory/internal/models"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear a client's stored chat history",
	}
	cmd.AddCommand(newHistoryShowCommand(), newHistoryClearCommand())
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	var clientID string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the chat history of a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			session, err := loadSession(cmd.Context(), a.store, clientID)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), session.Messages(), asJSON)
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func newHistoryClearCommand() *cobra.Command {
	var clientID string
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the chat history of a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			session, err := loadSession(cmd.Context(), a.store, clientID)
			if err != nil {
				return err
			}
			if err := session.Clear(cmd.Context(), yes); err != nil {
				if errors.Is(err, chat.ErrConfirmationRequired) {
					return errors.New("refusing to clear without --yes")
				}
				return err
			}
			// running servers drop their cached copy
			chat.NewInvalidator(a.rdb).Publish(cmd.Context(), clientID, chat.ScopeCleared)
			fmt.Fprintf(cmd.OutOrStdout(), "cleared chat history of %s\n", clientID)
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client id")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the history")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func loadSession(ctx context.Context, store clientstore.Store, clientID string) (*chat.Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	session := chat.NewSession(clientID, chat.Config{Store: store})
	if err := session.Load(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

func printHistory(w io.Writer, messages []models.ChatMessage, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(messages)
	}
	if len(messages) == 0 {
		_, err := fmt.Fprintln(w, "no messages")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSENDER\tSTATUS\tTEXT")
	for _, m := range messages {
		status := m.Status.String()
		if m.Status == models.StatusNone {
			status = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Timestamp.Format("2006-01-02 15:04:05"),
			m.Sender, status, strings.ReplaceAll(m.Text, "\n", " "))
	}
	return tw.Flush()
}
