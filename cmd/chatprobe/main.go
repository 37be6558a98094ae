// chatprobe is an operator tool for a running MedicChat server: dump a
// conversation, post a message, or follow a conversation live.
package main

import (
	"MedicChat/models"
	"MedicChat/pkg/logger"
	"MedicChat/pkg/session"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	verbose   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "chatprobe",
		Short:         "Inspect and exercise a MedicChat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("MEDICCHAT_URL", "http://localhost:5000"), "server base url")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("MEDICCHAT_TOKEN"), "JWT when the server has auth enabled")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log retries and connection events")

	rootCmd.AddCommand(historyCmd(), sendCmd(), watchCmd())

	if err := rootCmd.Execute(); err != nil {
		color.Red.Println("error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newClient() (*session.Client, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return session.NewClient(serverURL,
		session.WithToken(token),
		session.WithLogger(logger.NewWithWriter(os.Stderr, level, "console")),
	)
}

func parseCustomer(arg string) (uint, error) {
	id, ok := models.ParseCustomerID(arg)
	if !ok {
		return 0, fmt.Errorf("invalid customer id %q", arg)
	}
	return id, nil
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <customer_id>",
		Short: "Print a conversation as a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCustomer(args[0])
			if err != nil {
				return err
			}
			cl, err := newClient()
			if err != nil {
				return err
			}
			msgs, err := cl.History(cmd.Context(), id)
			if err != nil {
				return err
			}
			renderTable(cmd.OutOrStdout(), msgs)
			return nil
		},
	}
}

func renderTable(w io.Writer, msgs []models.Message) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Created", "Sender", "Receiver", "Content"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, m := range msgs {
		table.Append([]string{
			fmt.Sprint(m.ID),
			m.CreatedAt.Local().Format(time.DateTime),
			m.Sender,
			m.Receiver,
			m.Content,
		})
	}
	table.Render()
}

func sendCmd() *cobra.Command {
	var in models.MessageInput
	cmd := &cobra.Command{
		Use:   "send <customer_id>",
		Short: "Post a message over REST",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCustomer(args[0])
			if err != nil {
				return err
			}
			cl, err := newClient()
			if err != nil {
				return err
			}
			in.CustomerID = models.CustomerID(id)
			if in.Receiver == "" {
				customer, err := cl.Customer(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("receiver not given and customer lookup failed: %w", err)
				}
				in.Receiver = customer.DisplayName()
			}
			m, err := cl.Send(cmd.Context(), in)
			if err != nil {
				return err
			}
			color.Green.Printf("sent #%d at %s\n", m.ID, m.CreatedAt.Local().Format(time.DateTime))
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Sender, "sender", "admin", "sender label")
	cmd.Flags().StringVar(&in.Receiver, "receiver", "", "receiver label (defaults to the customer's name)")
	cmd.Flags().StringVar(&in.Content, "content", "", "message text")
	cmd.Flags().StringVar(&in.ClientRequestID, "request-id", "", "idempotency key (generated when empty)")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <customer_id>",
		Short: "Print a conversation and follow new messages until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCustomer(args[0])
			if err != nil {
				return err
			}
			cl, err := newClient()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			conv, err := cl.Open(ctx, id,
				func(m models.Message) { printLine(out, m) },
				func(e session.ChatError) { printChatError(out, e) },
			)
			if err != nil {
				return err
			}
			for _, m := range conv.View.Messages() {
				printLine(out, m)
			}
			fmt.Fprintln(out, color.Gray.Sprint("-- following, ctrl-c to stop --"))

			select {
			case <-ctx.Done():
				return conv.Close()
			case <-conv.Done():
				return fmt.Errorf("connection closed by server")
			}
		},
	}
}

func printChatError(w io.Writer, e session.ChatError) {
	fmt.Fprintln(w, color.Red.Sprintf("chat error: %s %v", e.Error, e.Fields))
}

func printLine(w io.Writer, m models.Message) {
	header := color.New(color.FgCyan, color.OpBold).Render(fmt.Sprintf("[%s] %s -> %s", m.CreatedAt.Local().Format(time.TimeOnly), m.Sender, m.Receiver))
	fmt.Fprintf(w, "%s %s\n", header, m.Content)
}
