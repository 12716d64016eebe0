// Package frontend is the interactive surface: it routes inbound commands and
// button presses, renders search result pages, and keeps the correlation
// entries that link a rendered page back to its query.
//
// Correlation key protocol (one entry per rendered message):
//
//	{id}:query_text:{chat}:{msg}  => query text behind a result page
//	{id}:query_chats:{chat}:{msg} => comma-joined chat scope of that query
//	{id}:select_chat:{chat}:{msg} => chat id picked via a selection prompt
//
// Button payload protocol: search_page={n}, select_chat={chat_id}.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tgsearcher/internal/backend"
	"github.com/dmitrijs2005/tgsearcher/internal/chatid"
	"github.com/dmitrijs2005/tgsearcher/internal/common"
	"github.com/dmitrijs2005/tgsearcher/internal/kvstore"
	"github.com/dmitrijs2005/tgsearcher/internal/logging"
	"github.com/dmitrijs2005/tgsearcher/internal/telegram"
)

// progressEditInterval is how many backfilled messages pass between edits of
// the in-place progress message.
const progressEditInterval = 500

const findChatLimit = 50

type Config struct {
	AdminChat   int64
	PageLen     int
	BotUsername string

	// PrivateMode restricts the bot to whitelisted users and chats. The
	// admin chat is always whitelisted; whitelist groups are expanded into
	// their member ids at startup.
	PrivateMode            bool
	PrivateWhitelist       []int64
	PrivateWhitelistGroups []int64
}

type Frontend struct {
	id       string
	cfg      Config
	backend  *backend.Backend
	renderer telegram.Renderer
	store    kvstore.Store
	log      logging.Logger

	mu        sync.RWMutex
	whitelist map[int64]struct{}
}

func New(id string, cfg Config, b *backend.Backend, r telegram.Renderer, store kvstore.Store, log logging.Logger) *Frontend {
	if cfg.PageLen <= 0 {
		cfg.PageLen = 10
	}
	whitelist := make(map[int64]struct{}, len(cfg.PrivateWhitelist)+1)
	for _, uid := range cfg.PrivateWhitelist {
		whitelist[uid] = struct{}{}
	}
	whitelist[cfg.AdminChat] = struct{}{}
	return &Frontend{
		id:        id,
		cfg:       cfg,
		backend:   b,
		renderer:  r,
		store:     store,
		log:       log.With("component", "frontend", "frontend_id", id),
		whitelist: whitelist,
	}
}

// Start expands the configured whitelist groups into their member ids. A
// group that cannot be read is logged and skipped; its members can still be
// whitelisted individually.
func (f *Frontend) Start(ctx context.Context) error {
	if !f.cfg.PrivateMode {
		return nil
	}
	for _, groupID := range f.cfg.PrivateWhitelistGroups {
		members, err := f.backend.GroupMembers(ctx, groupID)
		if err != nil {
			f.log.Error(ctx, "cannot expand whitelist group", "group_id", groupID, "error", err)
			continue
		}
		f.mu.Lock()
		for _, id := range members {
			f.whitelist[id] = struct{}{}
		}
		f.mu.Unlock()
		f.log.Info(ctx, "whitelist group expanded", "group_id", groupID, "members", len(members))
	}
	return nil
}

// allowed reports whether the sender or the chat itself is whitelisted.
func (f *Frontend) allowed(msg *telegram.Message) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if msg.Sender != nil {
		if _, ok := f.whitelist[msg.Sender.ID]; ok {
			return true
		}
	}
	_, ok := f.whitelist[chatid.Canonicalize(msg.ChatID)]
	return ok
}

// HandleMessage routes one inbound message. Errors are resolved here, per
// event: the user gets a reply appropriate to the error class and the event
// loop is never poisoned.
func (f *Frontend) HandleMessage(ctx context.Context, msg *telegram.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	// in a channel or group, only act when addressed
	if msg.IsChannel && !msg.IsMentioned && !strings.Contains(text, "@"+f.cfg.BotUsername) {
		return
	}

	// never react to the bot's own messages
	if msg.Sender != nil && msg.Sender.IsSelf {
		return
	}

	if f.cfg.PrivateMode && !f.allowed(msg) {
		f.log.Info(ctx, "rejecting non-whitelisted request", "chat_id", msg.ChatID)
		if err := f.send(ctx, msg.ChatID, "Due to privacy settings, you cannot use this bot."); err != nil {
			f.log.Error(ctx, "failed to deliver privacy notice", "chat_id", msg.ChatID, "error", err)
		}
		return
	}

	f.log.Info(ctx, "inbound message", "chat_id", msg.ChatID, "text", common.BriefContent(text))

	var err error
	if msg.ChatID == f.cfg.AdminChat {
		err = f.handleAdminMessage(ctx, msg, text)
	} else {
		err = f.handleUserMessage(ctx, msg, text)
	}
	if err != nil {
		f.reportError(ctx, msg.ChatID, err)
	}
}

// HandleCallback services a button press. A press on a message whose
// correlation entry is gone is a silent no-op: the control is stale, not
// broken.
func (f *Frontend) HandleCallback(ctx context.Context, cb *telegram.Callback) {
	if strings.TrimSpace(cb.Data) == "" {
		return
	}

	act, err := ParseAction(cb.Data)
	if err != nil {
		f.log.Warn(ctx, "undecodable button payload", "chat_id", cb.ChatID, "data", cb.Data, "error", err)
		f.reportError(ctx, cb.ChatID, err)
		return
	}

	switch act.Kind {
	case ActionSearchPage:
		err = f.turnPage(ctx, cb, act.Page)
	case ActionSelectChat:
		err = f.selectChat(ctx, cb, act.ChatID)
	}
	if err != nil {
		f.reportError(ctx, cb.ChatID, err)
	}
}

func (f *Frontend) handleUserMessage(ctx context.Context, msg *telegram.Message, text string) error {
	switch {
	case strings.HasPrefix(text, "/start"):
		return nil
	case strings.HasPrefix(text, "/random"):
		return f.randomMessage(ctx, msg)
	case strings.HasPrefix(text, "/chats"):
		return f.listChats(ctx, msg, common.RemoveFirstWord(text))
	case strings.HasPrefix(text, "/search"):
		return f.search(ctx, msg)
	case strings.HasPrefix(text, "/"):
		return f.send(ctx, msg.ChatID, fmt.Sprintf("Error: unknown command %s", strings.Fields(text)[0]))
	default:
		return f.search(ctx, msg)
	}
}

func (f *Frontend) handleAdminMessage(ctx context.Context, msg *telegram.Message, text string) error {
	switch {
	case strings.HasPrefix(text, "/stat"):
		return f.indexStatus(ctx, msg)
	case strings.HasPrefix(text, "/download_chat"):
		return f.downloadChat(ctx, msg, text)
	case strings.HasPrefix(text, "/monitor_chat"):
		return f.monitorChat(ctx, msg, text)
	case strings.HasPrefix(text, "/clear"):
		return f.clearChats(ctx, msg, text)
	case strings.HasPrefix(text, "/find_chat_id"):
		return f.findChatID(ctx, msg, common.RemoveFirstWord(text))
	default:
		return f.handleUserMessage(ctx, msg, text)
	}
}

// reportError maps an error onto the user-facing reply per its class.
func (f *Frontend) reportError(ctx context.Context, chatID int64, err error) {
	var notFound *common.EntityNotFoundError

	var reply string
	switch {
	case errors.Is(err, common.ErrorIndexUnavailable):
		reply = "The index is being written to right now, please try again shortly."
	case errors.As(err, &notFound):
		reply = fmt.Sprintf("Cannot find a chat or user matching %q.", notFound.Entity)
	default:
		reply = fmt.Sprintf("Error: %v\n\nPlease contact the administrator.", err)
	}

	f.log.Error(ctx, "request failed", "chat_id", chatID, "error", err)
	if _, serr := f.renderer.SendMessage(ctx, chatID, reply, nil); serr != nil {
		f.log.Error(ctx, "failed to deliver error reply", "chat_id", chatID, "error", serr)
	}
}

func (f *Frontend) search(ctx context.Context, msg *telegram.Message) error {
	empty, err := f.backend.IsEmpty(ctx, 0)
	if err != nil {
		return err
	}
	if empty {
		return f.send(ctx, msg.ChatID, "The index is empty, run /download_chat first.")
	}

	q := msg.Text
	if strings.HasPrefix(q, "/") || strings.HasPrefix(q, "@") {
		q = common.RemoveFirstWord(q)
	}
	q = strings.TrimSpace(q)
	if q == "" {
		// empty query gets no response at all
		return nil
	}

	chats := f.selectedChats(ctx, msg)
	f.log.Info(ctx, "search", "query", q, "chats", chats)

	start := time.Now()
	result, err := f.backend.Search(ctx, q, chats, f.cfg.PageLen, 1)
	if err != nil {
		return err
	}

	body := f.renderResults(ctx, result, time.Since(start))
	msgID, err := f.renderer.SendMessage(ctx, msg.ChatID, body, renderPageButtons(result, 1, f.cfg.PageLen))
	if err != nil {
		return err
	}

	if err := f.store.Set(ctx, f.key("query_text", msg.ChatID, msgID), q); err != nil {
		return err
	}
	if len(chats) > 0 {
		return f.store.Set(ctx, f.key("query_chats", msg.ChatID, msgID), joinChatIDs(chats))
	}
	return nil
}

// turnPage re-issues the stored query at the requested page and edits the
// same rendered message in place.
func (f *Frontend) turnPage(ctx context.Context, cb *telegram.Callback, page int) error {
	q, ok, err := f.store.Get(ctx, f.key("query_text", cb.ChatID, cb.MessageID))
	if err != nil {
		return err
	}
	if !ok || q == "" {
		f.log.Info(ctx, "page turn on a message with no stored query, ignoring",
			"chat_id", cb.ChatID, "message_id", cb.MessageID)
		return nil
	}

	var chats []int64
	if raw, ok, err := f.store.Get(ctx, f.key("query_chats", cb.ChatID, cb.MessageID)); err != nil {
		return err
	} else if ok {
		chats = splitChatIDs(raw)
	}

	f.log.Info(ctx, "page turn", "query", q, "chats", chats, "page", page)

	start := time.Now()
	result, err := f.backend.Search(ctx, q, chats, f.cfg.PageLen, page)
	if err != nil {
		return err
	}

	body := f.renderResults(ctx, result, time.Since(start))
	return f.renderer.EditMessage(ctx, cb.ChatID, cb.MessageID, body, renderPageButtons(result, page, f.cfg.PageLen))
}

// selectChat records the picked chat under the prompt message, so a later
// reply to that prompt is scoped to the chat.
func (f *Frontend) selectChat(ctx context.Context, cb *telegram.Callback, chatID int64) error {
	name := f.backend.TranslateChatID(ctx, chatID)
	body := fmt.Sprintf("Reply to this message to act on %s (%d).", name, chatID)
	if err := f.renderer.EditMessage(ctx, cb.ChatID, cb.MessageID, body, nil); err != nil {
		return err
	}
	return f.store.Set(ctx, f.key("select_chat", cb.ChatID, cb.MessageID), strconv.FormatInt(chatID, 10))
}

// selectedChats resolves the chat scope of a message: replying to a selection
// prompt scopes the request to the chat recorded under that prompt.
func (f *Frontend) selectedChats(ctx context.Context, msg *telegram.Message) []int64 {
	if msg.ReplyToID == 0 {
		return nil
	}
	raw, ok, err := f.store.Get(ctx, f.key("select_chat", msg.ChatID, msg.ReplyToID))
	if err != nil || !ok {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return []int64{id}
}

func (f *Frontend) randomMessage(ctx context.Context, msg *telegram.Message) error {
	rnd, err := f.backend.RandomMessage(ctx)
	if errors.Is(err, common.ErrorIndexEmpty) {
		return f.send(ctx, msg.ChatID, "Error: the index is empty.")
	}
	if err != nil {
		return err
	}
	name := f.backend.TranslateChatID(ctx, rnd.ChatID)
	body := fmt.Sprintf("Random message: <b>%s [%s]</b>\n%s\n", name, rnd.PostTime.Format(hitTimeLayout), rnd.URL)
	return f.send(ctx, msg.ChatID, body)
}

func (f *Frontend) listChats(ctx context.Context, msg *telegram.Message, keyword string) error {
	monitored := f.backend.Policy().Monitored()
	if len(monitored) == 0 {
		return f.send(ctx, msg.ChatID, "No chats are monitored yet, use /download_chat or /monitor_chat first.")
	}

	var buttons [][]telegram.Button
	for _, chatID := range monitored {
		name := f.backend.TranslateChatID(ctx, chatID)
		if keyword != "" && !strings.Contains(name, keyword) {
			continue
		}
		buttons = append(buttons, []telegram.Button{{
			Label: fmt.Sprintf("%s (%d)", name, chatID),
			Data:  fmt.Sprintf("%s=%d", ActionSelectChat, chatID),
		}})
	}

	_, err := f.renderer.SendMessage(ctx, msg.ChatID, "Pick a chat:", buttons)
	return err
}

func (f *Frontend) indexStatus(ctx context.Context, msg *telegram.Message) error {
	status, err := f.backend.IndexStatus(ctx, 4000)
	if err != nil {
		return err
	}
	return f.send(ctx, msg.ChatID, status)
}

type downloadArgs struct {
	minID     int64
	maxID     int64
	cloud     bool
	archive   bool
	overwrite bool
	chats     []string
}

// parseDownloadArgs understands "--min 10", "--min=10" and the boolean
// switches; everything else is a chat reference.
func parseDownloadArgs(fields []string) (*downloadArgs, error) {
	args := &downloadArgs{minID: 1, maxID: backend.MaxMessageID}

	intVal := func(i int) (int64, int, error) {
		name, inline, found := strings.Cut(fields[i], "=")
		raw := inline
		if !found {
			if i+1 >= len(fields) {
				return 0, 0, fmt.Errorf("missing value for %s", name)
			}
			raw = fields[i+1]
			i++
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("bad value for %s: %q", name, raw)
		}
		return v, i, nil
	}

	for i := 0; i < len(fields); i++ {
		switch field := fields[i]; {
		case field == "--cloud":
			args.cloud = true
		case field == "--archive":
			args.archive = true
		case field == "--overwrite":
			args.overwrite = true
		case strings.HasPrefix(field, "--min"):
			v, next, err := intVal(i)
			if err != nil {
				return nil, err
			}
			args.minID, i = v, next
		case strings.HasPrefix(field, "--max"):
			v, next, err := intVal(i)
			if err != nil {
				return nil, err
			}
			args.maxID, i = v, next
		case strings.HasPrefix(field, "--"):
			return nil, fmt.Errorf("unknown option %s", field)
		default:
			args.chats = append(args.chats, field)
		}
	}
	return args, nil
}

func (f *Frontend) downloadChat(ctx context.Context, msg *telegram.Message, text string) error {
	args, err := parseDownloadArgs(strings.Fields(text)[1:])
	if err != nil {
		return f.send(ctx, msg.ChatID, fmt.Sprintf("Error: %v", err))
	}

	chatIDs, err := f.resolveChatArgs(ctx, msg, args.chats)
	if err != nil {
		return err
	}
	if len(chatIDs) == 0 {
		return f.send(ctx, msg.ChatID, "Error: specify at least one chat.")
	}

	skipIndexing := false
	cloud := args.cloud
	if args.archive {
		// archive-only run
		cloud = true
		skipIndexing = true
	}

	for _, chatID := range chatIDs {
		if err := f.downloadHistory(ctx, msg.ChatID, chatID, args.minID, args.maxID, cloud, skipIndexing, !args.overwrite); err != nil {
			return err
		}
	}
	return nil
}

// downloadHistory runs one backfill, keeping the admin informed through a
// single progress message edited in place and deleted afterwards.
func (f *Frontend) downloadHistory(ctx context.Context, replyChat, chatID, minID, maxID int64, cloud, skipIndexing, skipExisting bool) error {
	name := f.backend.TranslateChatID(ctx, chatID)

	var (
		count      int64
		progID     int64
		haveProgID bool
	)
	progress := func(msgID int64) {
		if count%progressEditInterval == 0 {
			remaining := maxID - msgID
			body := fmt.Sprintf("%s (%d): about %d messages remaining", name, chatID, remaining)
			if haveProgID {
				// edits are rate limited by the platform; a failed edit just
				// leaves a stale counter
				if err := f.renderer.EditMessage(ctx, replyChat, progID, body, nil); err != nil {
					f.log.Info(ctx, "progress edit failed, ignoring", "error", err)
				}
			} else if id, err := f.renderer.SendMessage(ctx, replyChat, body, nil); err == nil {
				progID, haveProgID = id, true
			}
		}
		count++
	}

	err := f.backend.DownloadHistory(ctx, backend.BackfillRequest{
		ChatID:       chatID,
		MinID:        minID,
		MaxID:        maxID,
		Cloud:        cloud,
		SkipIndexing: skipIndexing,
		SkipExisting: skipExisting,
		Progress:     progress,
	})
	if haveProgID {
		if derr := f.renderer.DeleteMessage(ctx, replyChat, progID); derr != nil {
			f.log.Info(ctx, "failed to delete progress message", "error", derr)
		}
	}
	if errors.Is(err, common.ErrorIndexNotEmpty) {
		return f.send(ctx, replyChat, fmt.Sprintf(
			"Error: the index of %s (%d) is not empty, a full re-download would duplicate messages. "+
				"Run /clear first, or narrow the range with --min and --max.", name, chatID))
	}
	if err != nil {
		return err
	}

	return f.send(ctx, replyChat, fmt.Sprintf("%s (%d): download finished, %d messages processed.", name, chatID, count))
}

func (f *Frontend) monitorChat(ctx context.Context, msg *telegram.Message, text string) error {
	chatIDs, err := f.resolveChatArgs(ctx, msg, strings.Fields(text)[1:])
	if err != nil {
		return err
	}
	if len(chatIDs) == 0 {
		return f.send(ctx, msg.ChatID, "Error: specify at least one chat.")
	}

	for _, chatID := range chatIDs {
		f.backend.Policy().Add(chatID)
		name := f.backend.TranslateChatID(ctx, chatID)
		f.log.Info(ctx, "chat added to monitor list", "chat_id", chatID)
		if err := f.send(ctx, msg.ChatID, fmt.Sprintf("%s (%d) is now monitored.", name, chatID)); err != nil {
			return err
		}
	}
	return nil
}

func (f *Frontend) clearChats(ctx context.Context, msg *telegram.Message, text string) error {
	refs := strings.Fields(text)[1:]

	if len(refs) == 1 && refs[0] == "all" {
		if err := f.backend.ClearChats(ctx, nil); err != nil {
			return err
		}
		return f.send(ctx, msg.ChatID, "The whole index was cleared.")
	}

	chatIDs, err := f.resolveChatArgs(ctx, msg, refs)
	if err != nil {
		return err
	}
	if len(chatIDs) == 0 {
		return f.send(ctx, msg.ChatID,
			"Use <pre>/clear all</pre> to clear the whole index, or <pre>/clear [CHAT ...]</pre> to clear specific chats.")
	}

	if err := f.backend.ClearChats(ctx, chatIDs); err != nil {
		return err
	}
	for _, chatID := range chatIDs {
		name := f.backend.TranslateChatID(ctx, chatID)
		if err := f.send(ctx, msg.ChatID, fmt.Sprintf("The index of %s (%d) was cleared.", name, chatID)); err != nil {
			return err
		}
	}
	return nil
}

func (f *Frontend) findChatID(ctx context.Context, msg *telegram.Message, keyword string) error {
	if keyword == "" {
		return f.send(ctx, msg.ChatID, "Error: the keyword must not be empty.")
	}

	chatIDs, err := f.backend.FindChatIDs(ctx, keyword)
	if err != nil {
		return err
	}
	if len(chatIDs) == 0 {
		return f.send(ctx, msg.ChatID, fmt.Sprintf("No chat with %q in its title.", keyword))
	}

	if len(chatIDs) > findChatLimit {
		chatIDs = chatIDs[:findChatLimit]
	}
	var sb strings.Builder
	for _, chatID := range chatIDs {
		name := f.backend.TranslateChatID(ctx, chatID)
		fmt.Fprintf(&sb, "%s: <pre>%d</pre>\n", common.EscapeContent(name), chatID)
	}
	return f.send(ctx, msg.ChatID, sb.String())
}

// resolveChatArgs maps explicit references to chat ids; with no references
// it falls back to the selection-prompt scope of a reply.
func (f *Frontend) resolveChatArgs(ctx context.Context, msg *telegram.Message, refs []string) ([]int64, error) {
	if len(refs) == 0 {
		return f.selectedChats(ctx, msg), nil
	}
	out := make([]int64, 0, len(refs))
	for _, ref := range refs {
		id, err := f.backend.ResolveChat(ctx, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (f *Frontend) send(ctx context.Context, chatID int64, text string) error {
	_, err := f.renderer.SendMessage(ctx, chatID, text, nil)
	return err
}

func (f *Frontend) key(kind string, chatID, msgID int64) string {
	return fmt.Sprintf("%s:%s:%d:%d", f.id, kind, chatID, msgID)
}

func joinChatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitChatIDs(raw string) []int64 {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
