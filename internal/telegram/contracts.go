package telegram

import "context"

// EventHandler receives live platform events, one method per event kind.
// It is registered once at startup via Session.Subscribe; the session layer
// dispatches each event as its own unit of work, so implementations must be
// safe for concurrent calls.
type EventHandler interface {
	OnNewMessage(ctx context.Context, msg *Message) error
	OnMessageEdited(ctx context.Context, msg *Message) error
	OnMessagesDeleted(ctx context.Context, ev *DeletedMessages) error
}

// Session is the consuming side of the platform client: event subscription,
// bounded history reads and identity resolution.
type Session interface {
	// Subscribe registers the handler for live events. Call once at startup.
	Subscribe(h EventHandler)

	// ForEachHistory iterates messages of one chat with id in [minID, maxID],
	// invoking fn per message. A non-nil fn error stops the iteration and is
	// returned as-is.
	ForEachHistory(ctx context.Context, chatID, minID, maxID int64, fn func(*Message) error) error

	// ChatName resolves a chat id to its display title.
	ChatName(ctx context.Context, chatID int64) (string, error)

	// ResolveChat turns a user-supplied reference (numeric id, @name, title)
	// into a raw chat id.
	ResolveChat(ctx context.Context, ref string) (int64, error)

	// FindChatIDs returns ids of dialogs whose title contains the keyword.
	FindChatIDs(ctx context.Context, keyword string) ([]int64, error)

	// GroupMembers returns the user ids of a group's members, used to expand
	// whitelist groups into individual users.
	GroupMembers(ctx context.Context, chatID int64) ([]int64, error)
}

// Button is one interactive control attached to a rendered message. Data is
// the opaque action token delivered back on a press; empty Data renders an
// inert control.
type Button struct {
	Label string
	Data  string
}

// Renderer is the producing side of the platform client: sending and editing
// rendered messages with optional action strips.
type Renderer interface {
	SendMessage(ctx context.Context, chatID int64, text string, buttons [][]Button) (msgID int64, err error)
	EditMessage(ctx context.Context, chatID, msgID int64, text string, buttons [][]Button) error
	DeleteMessage(ctx context.Context, chatID, msgID int64) error
}

// Callback is a button press on a previously rendered message. MessageID is
// the identity of the rendered message the control is attached to.
type Callback struct {
	ChatID    int64
	MessageID int64
	Data      string
}
