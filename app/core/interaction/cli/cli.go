package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"auratask/app/pkg/types"
)

type CLIChannel struct {
	id     string
	userID string
	label  string
}

func NewCLIChannel(userID string, label string) *CLIChannel {
	if strings.TrimSpace(userID) == "" {
		userID = "local_user"
	}
	if strings.TrimSpace(label) == "" {
		label = "Aura"
	}
	return &CLIChannel{id: "cli", userID: userID, label: label}
}

func (c *CLIChannel) ID() string {
	return c.id
}

func (c *CLIChannel) Start(ctx context.Context, handler func(types.Message)) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Printf(">> %s CLI started. Type 'exit' to quit, '/help' for commands.\n", c.label)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			fmt.Print("> ")
			if !scanner.Scan() {
				return nil
			}
			text := strings.TrimSpace(scanner.Text())
			if text == "exit" || text == "quit" {
				fmt.Println("Exiting CLI loop...")
				return nil
			}
			if text == "" {
				continue
			}

			msgID := fmt.Sprintf("cli-%d", time.Now().UnixNano())
			handler(types.Message{
				ID:        msgID,
				Sender:    types.SenderUser,
				Text:      text,
				Kind:      types.KindPlain,
				ChannelID: c.id,
				UserID:    c.userID,
				RequestID: msgID,
			})
		}
	}
}

func (c *CLIChannel) Send(ctx context.Context, msg types.Message) error {
	if msg.Kind == types.KindConfirmation && msg.TaskData != nil {
		fmt.Printf("[%s]: %s\n", c.label, msg.Text)
		fmt.Printf("        -> %s on %s at %s (reply 'yes' to confirm)\n",
			msg.TaskData.Title, msg.TaskData.Date, msg.TaskData.Time)
		return nil
	}
	fmt.Printf("[%s]: %s\n", c.label, msg.Text)
	return nil
}

// ShowTasks prints the refreshed task list. Wired to the store's subscription
// feed so the terminal mirrors what the web client renders live.
func (c *CLIChannel) ShowTasks(lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Println("-- tasks --")
	for _, line := range lines {
		fmt.Println("  " + line)
	}
}
