package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	server   string
	token    string
	model    string
	noStream bool
	resumeID string
)

var rootCmd = &cobra.Command{
	Use:          "chat-cli",
	Short:        "Terminal client for the chat service",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if token == "" {
			token = os.Getenv("CHAT_TOKEN")
		}
		if token == "" {
			return fmt.Errorf("a token is required: pass --token or set CHAT_TOKEN (chat-service token --user <id>)")
		}
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation. Commands inside the prompt:
  /new     start a new session
  /exit    quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAPIClient(server, token)
		return chatLoop(cmd, c, os.Stdin)
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List your sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newAPIClient(server, token).Sessions(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, s := range list {
			fmt.Fprintf(out, "%s  %s  %s\n", s.ID, s.UpdatedAt, s.Title)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Print the messages of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := newAPIClient(server, token).History(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range msgs {
			like := ""
			if m.Liked == 1 {
				like = " ♥"
			}
			fmt.Fprintf(out, "[%s] %s (%s)%s: %s\n", m.CreatedAt, m.Role, m.ID, like, m.Content)
		}
		return nil
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <message-id>",
	Short: "Regenerate an assistant reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd.OutOrStdout())
		err := newAPIClient(server, token).Regenerate(cmd.Context(), args[0], model, p.print)
		p.end()
		return err
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newAPIClient(server, token).DeleteSession(cmd.Context(), args[0])
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models offered by the provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		models, err := newAPIClient(server, token).Models(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Fprintln(cmd.OutOrStdout(), m)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&server, "server", "s", "http://localhost:8080", "chat service address")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", "", "bearer token (default $CHAT_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "model name, server default when empty")

	chatCmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the whole reply instead of streaming")
	chatCmd.Flags().StringVar(&resumeID, "session", "", "continue an existing session")

	rootCmd.AddCommand(chatCmd, sessionsCmd, historyCmd, regenerateCmd, deleteCmd, modelsCmd)
}

func chatLoop(cmd *cobra.Command, c *apiClient, in io.Reader) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(in)
	sessionID := resumeID

	fmt.Fprintln(out, "Type /new for a new session, /exit to quit.")
	for {
		fmt.Fprint(out, "You: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintln(out)
			return nil
		}
		switch text := strings.TrimSpace(line); text {
		case "":
			continue
		case "/exit":
			return nil
		case "/new":
			sessionID = ""
			fmt.Fprintln(out, "New session.")
		default:
			p := newPrinter(out)
			fmt.Fprint(out, "AI: ")
			id, err := c.Chat(cmd.Context(), chatParams{
				SessionID: sessionID,
				Model:     model,
				Stream:    !noStream,
				Text:      text,
			}, p.print)
			p.end()
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			if id != "" && id != sessionID {
				sessionID = id
				fmt.Fprintf(out, "(session %s)\n", sessionID)
			}
		}
	}
}

// printer renders thinking text dimmed and replies as they arrive.
type printer struct {
	out      io.Writer
	thinking bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) print(evt streamEvent) {
	switch evt.Type {
	case "thinking":
		if !p.thinking {
			fmt.Fprint(p.out, "\x1b[2m")
			p.thinking = true
		}
		fmt.Fprint(p.out, evt.Thinking)
	case "delta":
		p.leaveThinking()
		fmt.Fprint(p.out, evt.Text)
	}
}

func (p *printer) leaveThinking() {
	if p.thinking {
		fmt.Fprint(p.out, "\x1b[0m\n")
		p.thinking = false
	}
}

func (p *printer) end() {
	p.leaveThinking()
	fmt.Fprintln(p.out)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
