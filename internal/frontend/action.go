package frontend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/tgsearcher/internal/common"
)

// Action kinds carried in button payloads.
const (
	ActionSearchPage = "search_page"
	ActionSelectChat = "select_chat"
)

// Action is a decoded button payload.
type Action struct {
	Kind   string
	Page   int   // set for search_page
	ChatID int64 // set for select_chat
}

// ParseAction decodes a "kind=value" button payload. An unrecognized kind is
// common.ErrorUnknownAction: its own class, so the dispatcher can report it
// generically without conflating it with user errors.
func ParseAction(data string) (*Action, error) {
	kind, value, found := strings.Cut(data, "=")
	if !found {
		return nil, fmt.Errorf("%w: %q", common.ErrorUnknownAction, data)
	}

	switch kind {
	case ActionSearchPage:
		page, err := strconv.Atoi(value)
		if err != nil || page < 1 {
			return nil, fmt.Errorf("%w: bad page in %q", common.ErrorUnknownAction, data)
		}
		return &Action{Kind: ActionSearchPage, Page: page}, nil

	case ActionSelectChat:
		chatID, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad chat id in %q", common.ErrorUnknownAction, data)
		}
		return &Action{Kind: ActionSelectChat, ChatID: chatID}, nil

	default:
		return nil, fmt.Errorf("%w: %q", common.ErrorUnknownAction, data)
	}
}
