// Package chatid normalizes chat identifiers between the two identifier
// spaces the platform exposes for the same chat.
//
// Broadcast channels and supergroups appear both in a "full" marked form
// (-100XXXXXXXXXX) and in a "short" form (XXXXXXXXXX). Everything stored by
// this project — index records, monitor sets, archival keys, correlation
// keys — uses the short canonical form; raw identifiers are converted at
// ingress and never persisted.
package chatid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/tgsearcher/internal/common"
)

// channelMark is the -100 prefix in numeric form: a channel id C is delivered
// as -(1_000_000_000_000 + C).
const channelMark = int64(1_000_000_000_000)

// Canonicalize reduces a raw chat identifier to its canonical form.
// Pure and idempotent: ids already in canonical form pass through unchanged.
func Canonicalize(raw int64) int64 {
	if raw <= -channelMark {
		return -raw - channelMark
	}
	return raw
}

// MessageURL builds the unique index-record identity for a message. The chat
// id is canonicalized first, so both identifier spaces yield the same URL.
func MessageURL(chatID, msgID int64) string {
	return fmt.Sprintf("https://t.me/c/%d/%d", Canonicalize(chatID), msgID)
}

// ParseMessageURL recovers the canonical chat id and message id from a URL
// produced by MessageURL.
func ParseMessageURL(url string) (chatID int64, msgID int64, err error) {
	const prefix = "https://t.me/c/"
	rest, ok := strings.CutPrefix(url, prefix)
	if !ok {
		return 0, 0, common.NewEntityNotFoundError(url)
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return 0, 0, common.NewEntityNotFoundError(url)
	}
	chatID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, common.NewEntityNotFoundError(url)
	}
	msgID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, common.NewEntityNotFoundError(url)
	}
	return chatID, msgID, nil
}
