// Package model defines the records written to the archival structured store.
//
// Field names matter: the dynamodbav tags below are the attribute names the
// table is provisioned with (chatId HASH, timestamp RANGE) and the ones the
// conditional-write guard in internal/cloud checks. Keep them in sync.
package model

type MediaType string

const (
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
	MediaUnknown  MediaType = "unknown"
)

type ArchivedUser struct {
	UserID    int64  `dynamodbav:"userId" json:"userId"`
	Username  string `dynamodbav:"username" json:"username,omitempty"`
	FirstName string `dynamodbav:"firstName" json:"firstName,omitempty"`
	LastName  string `dynamodbav:"lastName" json:"lastName,omitempty"`
	IsBot     bool   `dynamodbav:"isBot" json:"isBot"`
}

type ArchivedMedia struct {
	MediaType MediaType `dynamodbav:"mediaType" json:"mediaType"`
	MediaKey  string    `dynamodbav:"mediaKey" json:"mediaKey"`
}

// ArchivedMessage is one row of the structured store. Identity for
// deduplication purposes is (ChatID, MessageID); the table's primary key is
// (chatId, timestamp), which coincides for re-deliveries of the same message.
type ArchivedMessage struct {
	ChatID    int64          `dynamodbav:"chatId" json:"chatId"`
	MessageID int64          `dynamodbav:"messageId" json:"messageId"`
	Timestamp int64          `dynamodbav:"timestamp" json:"timestamp"`
	User      *ArchivedUser  `dynamodbav:"user" json:"user"`
	Text      string         `dynamodbav:"text" json:"text,omitempty"`
	Media     *ArchivedMedia `dynamodbav:"media,omitempty" json:"media,omitempty"`
	ReplyTo   int64          `dynamodbav:"replyTo,omitempty" json:"replyTo,omitempty"`
	IsForward bool           `dynamodbav:"isForward" json:"isForward"`
	FwdFrom   int64          `dynamodbav:"fwdFrom,omitempty" json:"fwdFrom,omitempty"`
}
