package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/folio/internal/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the portfolio assistant from the terminal",
	Long: `Chat with the portfolio assistant through a folio relay.

The relay URL defaults to chat.endpoint, or the local server's /api/chat.
Type /reset to clear the conversation and /quit to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		endpoint, _ := cmd.Flags().GetString("endpoint")
		if endpoint == "" {
			endpoint = cfg.Chat.Endpoint
		}
		if endpoint == "" {
			endpoint = localBaseURL(cfg) + "/api/chat"
		}

		transport := chat.NewHTTPTransport(endpoint)
		transport.MaxTokens, _ = cmd.Flags().GetInt("max-tokens")

		session := chat.NewSession(transport)
		printStep("Chatting via %s", endpoint)
		return runChat(cmd.Context(), session, os.Stdin, os.Stdout)
	},
}

func init() {
	chatCmd.Flags().String("endpoint", "", "relay chat URL")
	chatCmd.Flags().Int("max-tokens", 0, "requested reply length (server caps it)")
}

// runChat reads lines from in until EOF or /quit and sends each one.
func runChat(ctx context.Context, session *chat.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for {
		fmt.Fprint(out, colorize(colorBold, "you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()
		session.SetDraft(line)

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			session.Reset()
			printSuccess("Conversation cleared")
			continue
		}

		reply, err := session.Send(ctx, line)
		if err != nil {
			printChatError(err)
			continue
		}
		fmt.Fprintf(out, "%s %s\n\n", colorize(colorCyan, "assistant>"), reply.Content)
	}
}

func printChatError(err error) {
	var rl *chat.RateLimitError
	var se *chat.SendError
	switch {
	case errors.As(err, &rl):
		printWarning("%s", rl.Notice())
	case errors.As(err, &se):
		printError("%s", se.Notice())
		printStatus("Detail", "%v", se.Err)
	default:
		printError("%v", err)
	}
}
