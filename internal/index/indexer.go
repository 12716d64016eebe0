// Package index defines the contract to the full-text engine and its two
// implementations: a bleve-backed on-disk index and an in-memory index for
// tests and lightweight deployments.
//
// The engine's internals (tokenization, ranking, on-disk format) are not this
// project's concern; everything above consumes the Indexer interface only.
package index

import (
	"context"
	"time"
)

// IndexMsg is the unit stored by the full-text engine. Identity is URL;
// ChatID is always the canonical form.
type IndexMsg struct {
	Content  string
	URL      string
	ChatID   int64
	PostTime time.Time
	Sender   string
}

// SearchHit is one result with the engine's highlighted snippet.
type SearchHit struct {
	Msg         *IndexMsg
	Highlighted string
}

type SearchResult struct {
	Hits         []*SearchHit
	TotalResults uint64
	// IsLastPage is engine-reported, not arithmetic: result counts can
	// change between page loads.
	IsLastPage bool
}

// Indexer is the gateway to the full-text engine. Write calls serialize at
// this boundary; a rejected write surfaces common.ErrorIndexUnavailable and
// is treated as retryable-by-user.
type Indexer interface {
	// Add stores a record. Adding an URL that already exists replaces it.
	Add(ctx context.Context, msg *IndexMsg) error

	// AddBatch commits a group of records all-or-nothing. Backfill relies on
	// this so a failure partway through never leaves a half-committed range.
	AddBatch(ctx context.Context, msgs []*IndexMsg) error

	// Update replaces the content stored under url. An url that does not
	// exist yet is created (upsert), since edits can race backfill.
	Update(ctx context.Context, url, content string) error

	// Delete removes the record under url; an absent url is a no-op.
	Delete(ctx context.Context, url string) error

	// Search runs a paged query, optionally scoped to the given chats.
	// pageNum is 1-based.
	Search(ctx context.Context, q string, inChats []int64, pageLen, pageNum int) (*SearchResult, error)

	// CountByChat returns the number of records for one chat.
	CountByChat(ctx context.Context, chatID int64) (uint64, error)

	// ListIndexedChats returns every chat id with at least one record.
	ListIndexedChats(ctx context.Context) ([]int64, error)

	// RetrieveRandom returns a random record, or common.ErrorIndexEmpty.
	RetrieveRandom(ctx context.Context) (*IndexMsg, error)

	DocCount(ctx context.Context) (uint64, error)

	// IsEmpty reports whether the chat has no records; chatID 0 checks the
	// whole index.
	IsEmpty(ctx context.Context, chatID int64) (bool, error)

	// DeleteByChat removes every record of one chat.
	DeleteByChat(ctx context.Context, chatID int64) error

	// Clear removes everything.
	Clear(ctx context.Context) error

	Close() error
}
