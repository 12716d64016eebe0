package telegram

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// Console is a development stand-in for the platform client: typed lines are
// fed to the handlers as messages from one synthetic chat and rendered
// replies are printed to the terminal. History reads and identity resolution
// beyond numeric ids are not available.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	chatID  int64
	nextID  int64
	handler EventHandler
}

var (
	_ Session  = (*Console)(nil)
	_ Renderer = (*Console)(nil)
)

func NewConsole(out io.Writer, chatID int64) *Console {
	return &Console{out: out, chatID: chatID}
}

func (c *Console) Subscribe(h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *Console) ForEachHistory(ctx context.Context, chatID, minID, maxID int64, fn func(*Message) error) error {
	return fmt.Errorf("history is not available on a console session")
}

func (c *Console) ChatName(ctx context.Context, chatID int64) (string, error) {
	if chatID == c.chatID {
		return "console", nil
	}
	return "", fmt.Errorf("chat %d is not reachable from a console session", chatID)
}

func (c *Console) ResolveChat(ctx context.Context, ref string) (int64, error) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("console session resolves numeric ids only, got %q", ref)
	}
	return id, nil
}

func (c *Console) FindChatIDs(ctx context.Context, keyword string) ([]int64, error) {
	return nil, nil
}

func (c *Console) GroupMembers(ctx context.Context, chatID int64) ([]int64, error) {
	return nil, fmt.Errorf("group members are not available on a console session")
}

func (c *Console) SendMessage(ctx context.Context, chatID int64, text string, buttons [][]Button) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	fmt.Fprintf(c.out, "[%d] %s\n", c.nextID, text)
	c.printButtons(buttons)
	return c.nextID, nil
}

func (c *Console) EditMessage(ctx context.Context, chatID, msgID int64, text string, buttons [][]Button) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%d edited] %s\n", msgID, text)
	c.printButtons(buttons)
	return nil
}

func (c *Console) DeleteMessage(ctx context.Context, chatID, msgID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%d deleted]\n", msgID)
	return nil
}

func (c *Console) printButtons(buttons [][]Button) {
	for _, row := range buttons {
		for _, b := range row {
			if b.Data != "" {
				fmt.Fprintf(c.out, "  (%s -> %s)", b.Label, b.Data)
			}
		}
	}
	if len(buttons) > 0 {
		fmt.Fprintln(c.out)
	}
}
