package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/concierge/internal/logger"
	"github.com/zulandar/concierge/internal/messaging"
)

func newConversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Guest conversation commands",
	}

	cmd.AddCommand(newConversationListCmd())
	cmd.AddCommand(newConversationCreateCmd())
	cmd.AddCommand(newConversationShowCmd())
	cmd.AddCommand(newConversationMessagesCmd())
	cmd.AddCommand(newConversationSendCmd())
	cmd.AddCommand(newConversationReadCmd())
	cmd.AddCommand(newConversationStatusCmd())
	return cmd
}

func newConversationListCmd() *cobra.Command {
	var (
		configPath string
		search     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Long:  "Lists conversations, most recent activity first. Output is formatted as a table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversationList(cmd, configPath, search)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	cmd.Flags().StringVar(&search, "search", "", "filter by guest name or phone")
	return cmd
}

func runConversationList(cmd *cobra.Command, configPath, search string) error {
	_, svc, err := serviceFromConfig(configPath)
	if err != nil {
		return err
	}
	list, err := svc.List(context.Background(), search)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No conversations found.")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGUEST\tPHONE\tUNREAD\tMSGS\tLAST\tPREVIEW")
	for _, s := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%s\n",
			s.ID, truncate(s.CustomerName, 24), logger.MaskPhone(s.CustomerPhone),
			s.UnreadCount, s.MessageCount, formatAge(s.LastMessageTime, now),
			truncate(orDash(s.LastMessage), 40))
	}
	w.Flush()
	return nil
}

func newConversationCreateCmd() *cobra.Command {
	var (
		configPath string
		name       string
		phone      string
		customerID uint
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Find or create a conversation for a guest phone",
		Long:  "Returns the existing conversation for the phone number, or creates one.",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := messaging.CreateInput{CustomerName: name, CustomerPhone: phone}
			if customerID > 0 {
				in.CustomerID = &customerID
			}
			return runConversationCreate(cmd, configPath, in)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	cmd.Flags().StringVar(&name, "name", "", "guest name (required)")
	cmd.Flags().StringVar(&phone, "phone", "", "guest phone number (required)")
	cmd.Flags().UintVar(&customerID, "customer-id", 0, "CRM customer ID")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("phone")
	return cmd
}

func runConversationCreate(cmd *cobra.Command, configPath string, in messaging.CreateInput) error {
	_, svc, err := serviceFromConfig(configPath)
	if err != nil {
		return err
	}
	sum, existing, err := svc.FindOrCreate(context.Background(), in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if existing {
		fmt.Fprintf(out, "Conversation %d already exists for %s\n", sum.ID, logger.MaskPhone(sum.CustomerPhone))
	} else {
		fmt.Fprintf(out, "Created conversation %d for %s\n", sum.ID, sum.CustomerName)
	}
	return nil
}

func newConversationShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show conversation details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			return runConversationShow(cmd, configPath, id)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	return cmd
}

func runConversationShow(cmd *cobra.Command, configPath string, id uint) error {
	_, svc, err := serviceFromConfig(configPath)
	if err != nil {
		return err
	}
	sum, err := svc.Get(context.Background(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Conversation: %d\n", sum.ID)
	fmt.Fprintf(out, "Guest:        %s\n", sum.CustomerName)
	fmt.Fprintf(out, "Phone:        %s\n", logger.MaskPhone(sum.CustomerPhone))
	if sum.CustomerID != nil {
		fmt.Fprintf(out, "Customer ID:  %d\n", *sum.CustomerID)
	}
	fmt.Fprintf(out, "Messages:     %d\n", sum.MessageCount)
	fmt.Fprintf(out, "Unread:       %d\n", sum.UnreadCount)
	fmt.Fprintf(out, "Last message: %s\n", orDash(sum.LastMessage))
	if sum.LastMessageTime != nil {
		fmt.Fprintf(out, "Last at:      %s\n", sum.LastMessageTime.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Created:      %s\n", sum.CreatedAt.Format(time.RFC3339))
	return nil
}

func newConversationMessagesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "messages <id>",
		Short: "Print a conversation's messages, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			return runConversationMessages(cmd, configPath, id)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	return cmd
}

func runConversationMessages(cmd *cobra.Command, configPath string, id uint) error {
	_, svc, err := serviceFromConfig(configPath)
	if err != nil {
		return err
	}
	msgs, err := svc.Messages(context.Background(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tSENDER\tSTATUS\tMESSAGE")
	for _, m := range msgs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Timestamp, m.Sender, m.Status, truncate(m.Message, 60))
	}
	w.Flush()
	return nil
}

func newConversationSendCmd() *cobra.Command {
	var (
		configPath string
		sender     string
		message    string
		direction  string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "send <id>",
		Short: "Append a message to a conversation",
		Long: `Appends a message. Customer messages raise the unread count; staff
replies (sender ai or admin) reset it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			return runConversationSend(cmd, configPath, messaging.AppendInput{
				ConversationID: id,
				Message:        message,
				Sender:         sender,
				Direction:      direction,
				Status:         status,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	cmd.Flags().StringVar(&sender, "sender", "admin", "sender (customer, ai, admin)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "message text (required)")
	cmd.Flags().StringVar(&direction, "direction", "", "override direction (incoming, outgoing)")
	cmd.Flags().StringVar(&status, "status", "", "initial delivery status (default sent)")
	cmd.MarkFlagRequired("message")
	return cmd
}

func runConversationSend(cmd *cobra.Command, configPath string, in messaging.AppendInput) error {
	_, svc, err := serviceFromConfig(configPath)
	if err != nil {
		return err
	}
	msg, err := svc.Append(context.Background(), in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Appended message %s to conversation %d\n", msg.ID, in.ConversationID)
	return nil
}

func newConversationReadCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a conversation as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			_, svc, err := serviceFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := svc.MarkRead(context.Background(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conversation %d marked read\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	return cmd
}

func newConversationStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status <id> <message-id> <status>",
		Short: "Set a message's delivery status",
		Long:  "Updates one message's status (e.g. delivered, read). Setting read also clears the unread count.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			_, svc, err := serviceFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := svc.UpdateStatus(context.Background(), id, args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Message %s status set to %s\n", args[1], args[2])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	return cmd
}

func parseConversationID(raw string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid conversation id %q", raw)
	}
	return uint(n), nil
}
