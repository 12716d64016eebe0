// Package telegram declares the boundary to the chat-platform client layer.
//
// The client itself (connection, auth, event transport) lives outside this
// project; everything here is the contract it is consumed through, plus the
// inbound message shape handlers receive.
package telegram

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/tgsearcher/internal/model"
)

// Sender describes the author of an inbound message. Zero value means the
// message has no resolvable sender (service messages, anonymous posts).
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
	// IsSelf marks the bot's own account, so its outgoing messages are not
	// handled as commands.
	IsSelf bool
}

// DisplayName renders the sender the way index records store it.
// Empty when there is no sender.
func (s *Sender) DisplayName() string {
	if s == nil || s.ID == 0 {
		return ""
	}
	if s.LastName != "" {
		return fmt.Sprintf("%s %s", s.FirstName, s.LastName)
	}
	return s.FirstName
}

// Media is a message attachment as delivered by the client layer. The client
// sets the raw discriminating hints; classification into the closed media
// enum happens here, in one place.
type Media struct {
	IsPhoto  bool
	HasAudio bool
	HasVideo bool
	FileName string
	Ext      string
	Data     []byte
}

// MediaInfo is the classified attachment: its kind from the closed
// enumeration plus kind-specific metadata (filename for documents).
type MediaInfo struct {
	Kind     model.MediaType
	FileName string
}

// ClassifyMedia maps an attachment onto the fixed {photo, video, audio,
// document, unknown} enumeration. Document filenames are carried through;
// other kinds get a generated name at upload time.
func ClassifyMedia(m *Media) MediaInfo {
	switch {
	case m == nil:
		return MediaInfo{Kind: model.MediaUnknown}
	case m.IsPhoto:
		return MediaInfo{Kind: model.MediaPhoto}
	case m.HasAudio:
		return MediaInfo{Kind: model.MediaAudio}
	case m.HasVideo:
		return MediaInfo{Kind: model.MediaVideo}
	case m.FileName != "" || len(m.Data) > 0:
		return MediaInfo{Kind: model.MediaDocument, FileName: m.FileName}
	default:
		return MediaInfo{Kind: model.MediaUnknown}
	}
}

// Message is one inbound platform message. ChatID is the raw identifier as
// delivered; consumers canonicalize it at ingress.
type Message struct {
	ChatID      int64
	ID          int64
	Text        string
	Date        time.Time
	Sender      *Sender
	Media       *Media
	ReplyToID   int64
	FwdFromID   int64
	IsForward   bool
	IsChannel   bool
	IsMentioned bool
}

// DeletedMessages is the platform's bulk delete notification. ChatID may be
// zero when the platform cannot attribute the deletion to a chat.
type DeletedMessages struct {
	ChatID     int64
	DeletedIDs []int64
}
