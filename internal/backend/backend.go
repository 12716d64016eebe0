// Package backend is the ingestion pipeline: live platform events and bulk
// backfill ranges funnel through the same extraction and gating logic into
// the index gateway and, when enabled, the archival sink.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tgsearcher/internal/chatid"
	"github.com/dmitrijs2005/tgsearcher/internal/common"
	"github.com/dmitrijs2005/tgsearcher/internal/index"
	"github.com/dmitrijs2005/tgsearcher/internal/logging"
	"github.com/dmitrijs2005/tgsearcher/internal/model"
	"github.com/dmitrijs2005/tgsearcher/internal/monitor"
	"github.com/dmitrijs2005/tgsearcher/internal/telegram"
)

// MaxMessageID is the default backfill upper bound (full history).
const MaxMessageID = int64(1<<31 - 1)

type Config struct {
	MonitorAll    bool
	ExcludedChats []int64
	CloudEnabled  bool
}

// Archiver is the slice of the archival sink the pipeline drives.
// *cloud.Client satisfies it.
type Archiver interface {
	UploadMedia(ctx context.Context, r io.Reader, scopePrefix, fileName string) (string, error)
	PutRecord(ctx context.Context, msg *model.ArchivedMessage, overwrite bool) error
	MessageExists(ctx context.Context, chatID, messageID int64) (bool, error)
}

type Backend struct {
	ID string

	policy   *monitor.Policy
	indexer  index.Indexer
	session  telegram.Session
	archiver Archiver // nil when archival is disabled
	log      logging.Logger

	mu     sync.Mutex
	newest map[int64]*index.IndexMsg
}

var _ telegram.EventHandler = (*Backend)(nil)

// New builds the pipeline. The monitored set is seeded from the chats that
// already have index records, so a restart never silently stops monitoring
// existing data.
func New(ctx context.Context, id string, cfg Config, idx index.Indexer, session telegram.Session, archiver Archiver, log logging.Logger) (*Backend, error) {
	seed, err := idx.ListIndexedChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("seeding monitored chats: %w", err)
	}

	if !cfg.CloudEnabled {
		archiver = nil
	}

	return &Backend{
		ID:       id,
		policy:   monitor.NewPolicy(cfg.MonitorAll, seed, cfg.ExcludedChats),
		indexer:  idx,
		session:  session,
		archiver: archiver,
		log:      log.With("component", "backend", "backend_id", id),
		newest:   make(map[int64]*index.IndexMsg),
	}, nil
}

// Start verifies the seeded monitored chats and registers the event hooks.
// A chat that can no longer be resolved is dropped from the monitor list and
// its index records are removed, as they cannot be kept current anymore.
func (b *Backend) Start(ctx context.Context) error {
	for _, chatID := range b.policy.Monitored() {
		name, err := b.session.ChatName(ctx, chatID)
		if err != nil {
			b.log.Error(ctx, "cannot resolve monitored chat, dropping it", "chat_id", chatID, "error", err)
			b.policy.Remove(chatID)
			if derr := b.indexer.DeleteByChat(ctx, chatID); derr != nil {
				b.log.Error(ctx, "failed to clear index of dropped chat", "chat_id", chatID, "error", derr)
			}
			continue
		}
		b.log.Info(ctx, "ready to monitor chat", "chat", name, "chat_id", chatID)
	}

	b.session.Subscribe(b)
	return nil
}

func (b *Backend) Policy() *monitor.Policy { return b.policy }

// OnNewMessage indexes a monitored message with non-empty extracted text and,
// independently, archives the full message when archival is enabled. Archival
// failure never blocks indexing.
func (b *Backend) OnNewMessage(ctx context.Context, msg *telegram.Message) error {
	if !b.policy.ShouldMonitor(msg.ChatID) {
		return nil
	}

	var indexErr error
	if text := extractText(msg); text != "" {
		imsg := indexMsgFrom(msg, text)
		b.log.Info(ctx, "new message", "url", imsg.URL, "sender", imsg.Sender, "content", common.BriefContent(text))
		b.setNewest(imsg)
		indexErr = b.indexer.Add(ctx, imsg)
	}

	if b.archiver != nil {
		if err := b.archiveMessage(ctx, msg, true); err != nil {
			b.log.Error(ctx, "failed to archive message", "chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
		}
	}

	return indexErr
}

// OnMessageEdited upserts the stored content under the same URL: an edit that
// races backfill simply becomes an add. Archived copies are overwritten, not
// skipped as already existing.
func (b *Backend) OnMessageEdited(ctx context.Context, msg *telegram.Message) error {
	if !b.policy.ShouldMonitor(msg.ChatID) {
		return nil
	}

	var indexErr error
	if text := extractText(msg); text != "" {
		url := chatid.MessageURL(msg.ChatID, msg.ID)
		b.log.Info(ctx, "message edited", "url", url, "content", common.BriefContent(text))
		indexErr = b.indexer.Update(ctx, url, text)
	}

	if b.archiver != nil {
		if err := b.archiveMessage(ctx, msg, false); err != nil {
			b.log.Error(ctx, "failed to re-archive edited message", "chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
		}
	}

	return indexErr
}

// OnMessagesDeleted removes the records of the deleted ids. Unknown urls are
// no-ops, not errors.
func (b *Backend) OnMessagesDeleted(ctx context.Context, ev *telegram.DeletedMessages) error {
	if ev.ChatID == 0 || !b.policy.ShouldMonitor(ev.ChatID) {
		return nil
	}

	var errs []error
	for _, msgID := range ev.DeletedIDs {
		url := chatid.MessageURL(ev.ChatID, msgID)
		b.log.Info(ctx, "message deleted", "url", url)
		if err := b.indexer.Delete(ctx, url); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type BackfillRequest struct {
	ChatID       int64 // raw form accepted
	MinID        int64
	MaxID        int64
	Cloud        bool
	SkipIndexing bool
	SkipExisting bool

	// Progress is invoked once per processed message. Failures inside the
	// callback are swallowed; they must not abort the backfill.
	Progress func(msgID int64)
}

// DownloadHistory ingests a bounded historical range of one chat. Extracted
// records are buffered and committed in one batch after the range, so a
// failure partway through never leaves a half-committed page-by-page state;
// whatever was buffered before a mid-range read error is still committed.
func (b *Backend) DownloadHistory(ctx context.Context, req BackfillRequest) error {
	shareID := chatid.Canonicalize(req.ChatID)

	// a blind re-run over an already indexed chat would duplicate work;
	// require a narrowed range or archive-only mode instead
	if !req.SkipIndexing && req.MinID <= 1 && req.MaxID >= MaxMessageID {
		empty, err := b.indexer.IsEmpty(ctx, shareID)
		if err != nil {
			return err
		}
		if !empty {
			return fmt.Errorf("%w: chat %d", common.ErrorIndexNotEmpty, shareID)
		}
	}

	b.log.Info(ctx, "downloading history", "chat_id", shareID, "min_id", req.MinID, "max_id", req.MaxID)
	b.policy.Add(shareID)

	var buffered []*index.IndexMsg
	iterErr := b.session.ForEachHistory(ctx, req.ChatID, req.MinID, req.MaxID, func(msg *telegram.Message) error {
		if req.Cloud && b.archiver != nil {
			if err := b.archiveMessage(ctx, msg, req.SkipExisting); err != nil {
				b.log.Error(ctx, "failed to archive message during backfill", "chat_id", shareID, "message_id", msg.ID, "error", err)
			}
		}
		if !req.SkipIndexing {
			if text := extractText(msg); text != "" {
				buffered = append(buffered, indexMsgFrom(msg, text))
			}
		}
		if req.Progress != nil {
			safeProgress(req.Progress, msg.ID)
		}
		return nil
	})
	if iterErr != nil {
		b.log.Error(ctx, "history read aborted, committing what was fetched", "chat_id", shareID, "buffered", len(buffered), "error", iterErr)
	}

	if len(buffered) > 0 {
		if err := b.indexer.AddBatch(ctx, buffered); err != nil {
			return errors.Join(iterErr, err)
		}
		b.setNewest(buffered[len(buffered)-1])
		b.log.Info(ctx, "index batch committed", "chat_id", shareID, "count", len(buffered))
	}

	return iterErr
}

// IndexStatus renders a human-readable status report: total record count,
// the exclusion list when monitoring all chats, and one line per monitored
// chat with its record count and newest seen message. Output is truncated at
// lengthLimit runes (0 disables the limit).
func (b *Backend) IndexStatus(ctx context.Context, lengthLimit int) (string, error) {
	total, err := b.indexer.DocCount(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Total messages indexed: %d\n", total)

	if b.policy.MonitorAll() {
		sb.WriteString("Monitoring all chats")
		if excluded := b.policy.Excluded(); len(excluded) > 0 {
			fmt.Fprintf(&sb, ", except %v", excluded)
		}
		sb.WriteString("\n")
	}

	for _, chatID := range b.policy.Monitored() {
		count, err := b.indexer.CountByChat(ctx, chatID)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "- %s (%d): %d messages\n", b.TranslateChatID(ctx, chatID), chatID, count)
		if newest := b.Newest(chatID); newest != nil {
			fmt.Fprintf(&sb, "  newest: %s %s\n", newest.URL, common.BriefContent(newest.Content))
		}
	}

	status := sb.String()
	if lengthLimit > 0 {
		if runes := []rune(status); len(runes) > lengthLimit {
			marker := "\n[truncated]"
			cut := lengthLimit - len([]rune(marker))
			if cut < 0 {
				cut = 0
			}
			status = string(runes[:cut]) + marker
		}
	}
	return status, nil
}

// ClearChats removes the given chats from the index and the monitor list;
// with no ids everything is cleared.
func (b *Backend) ClearChats(ctx context.Context, chatIDs []int64) error {
	if len(chatIDs) == 0 {
		if err := b.indexer.Clear(ctx); err != nil {
			return err
		}
		b.policy.Clear()
		return nil
	}
	for _, id := range chatIDs {
		if err := b.indexer.DeleteByChat(ctx, id); err != nil {
			return err
		}
		b.policy.Clear(id)
	}
	return nil
}

func (b *Backend) Search(ctx context.Context, q string, inChats []int64, pageLen, pageNum int) (*index.SearchResult, error) {
	return b.indexer.Search(ctx, q, inChats, pageLen, pageNum)
}

func (b *Backend) RandomMessage(ctx context.Context) (*index.IndexMsg, error) {
	return b.indexer.RetrieveRandom(ctx)
}

func (b *Backend) IsEmpty(ctx context.Context, chatID int64) (bool, error) {
	return b.indexer.IsEmpty(ctx, chatID)
}

// TranslateChatID resolves a chat id to a display name; unresolvable chats
// get a placeholder instead of failing the whole rendering.
func (b *Backend) TranslateChatID(ctx context.Context, chatID int64) string {
	name, err := b.session.ChatName(ctx, chatID)
	if err != nil {
		b.log.Warn(ctx, "cannot resolve chat name", "chat_id", chatID, "error", err)
		return "[unavailable]"
	}
	return name
}

// ResolveChat turns a user-supplied reference into a canonical chat id.
func (b *Backend) ResolveChat(ctx context.Context, ref string) (int64, error) {
	raw, err := b.session.ResolveChat(ctx, ref)
	if err != nil {
		return 0, common.NewEntityNotFoundError(ref)
	}
	return chatid.Canonicalize(raw), nil
}

func (b *Backend) FindChatIDs(ctx context.Context, keyword string) ([]int64, error) {
	return b.session.FindChatIDs(ctx, keyword)
}

func (b *Backend) GroupMembers(ctx context.Context, chatID int64) ([]int64, error) {
	return b.session.GroupMembers(ctx, chatID)
}

// Newest returns the most recently seen index record for a chat, if any.
func (b *Backend) Newest(chatID int64) *index.IndexMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newest[chatid.Canonicalize(chatID)]
}

func (b *Backend) setNewest(msg *index.IndexMsg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newest[msg.ChatID] = msg
}

// archiveMessage uploads the attachment (if any) and then writes the
// structured record referencing its key, in that order, so the record is
// never a dangling reference. With skipExisting the pre-check short-circuits
// re-deliveries; the store's conditional write remains the second guard.
func (b *Backend) archiveMessage(ctx context.Context, msg *telegram.Message, skipExisting bool) error {
	shareID := chatid.Canonicalize(msg.ChatID)

	if skipExisting {
		exists, err := b.archiver.MessageExists(ctx, shareID, msg.ID)
		if err != nil {
			b.log.Warn(ctx, "archive pre-check failed, relying on conditional write", "chat_id", shareID, "message_id", msg.ID, "error", err)
		} else if exists {
			b.log.Info(ctx, "message already archived, skipping", "chat_id", shareID, "message_id", msg.ID)
			return nil
		}
	}

	rec := &model.ArchivedMessage{
		ChatID:    shareID,
		MessageID: msg.ID,
		Timestamp: msg.Date.Unix(),
		User:      archivedUserFrom(msg.Sender),
		Text:      msg.Text,
		ReplyTo:   msg.ReplyToID,
		IsForward: msg.IsForward,
		FwdFrom:   msg.FwdFromID,
	}

	if msg.Media != nil {
		info := telegram.ClassifyMedia(msg.Media)
		name := info.FileName
		if name == "" {
			name = fmt.Sprintf("%d_%d_%d%s", shareID, msg.ID, msg.Date.Unix(), msg.Media.Ext)
		}
		key, err := b.archiver.UploadMedia(ctx, bytes.NewReader(msg.Media.Data), strconv.FormatInt(shareID, 10), name)
		if err != nil {
			// abandon archival of this one message; indexing proceeds independently
			return err
		}
		rec.Media = &model.ArchivedMedia{MediaType: info.Kind, MediaKey: key}
	}

	err := b.archiver.PutRecord(ctx, rec, !skipExisting)
	if errors.Is(err, common.ErrorDuplicateRecord) {
		// benign on re-delivery with dedup enabled
		b.log.Info(ctx, "record already archived", "chat_id", shareID, "message_id", msg.ID)
		return nil
	}
	return err
}

func archivedUserFrom(s *telegram.Sender) *model.ArchivedUser {
	if s == nil {
		return &model.ArchivedUser{}
	}
	return &model.ArchivedUser{
		UserID:    s.ID,
		Username:  s.Username,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		IsBot:     s.IsBot,
	}
}

func indexMsgFrom(msg *telegram.Message, text string) *index.IndexMsg {
	return &index.IndexMsg{
		Content:  text,
		URL:      chatid.MessageURL(msg.ChatID, msg.ID),
		ChatID:   chatid.Canonicalize(msg.ChatID),
		PostTime: msg.Date,
		Sender:   msg.Sender.DisplayName(),
	}
}

// extractText returns the HTML-escaped trimmed message text, "" when there is
// nothing worth indexing.
func extractText(msg *telegram.Message) string {
	t := strings.TrimSpace(msg.Text)
	if t == "" {
		return ""
	}
	return common.EscapeContent(t)
}

func safeProgress(fn func(int64), msgID int64) {
	defer func() { _ = recover() }()
	fn(msgID)
}
