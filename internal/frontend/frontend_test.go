package frontend

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tgsearcher/internal/backend"
	"github.com/dmitrijs2005/tgsearcher/internal/common"
	"github.com/dmitrijs2005/tgsearcher/internal/index"
	"github.com/dmitrijs2005/tgsearcher/internal/kvstore"
	"github.com/dmitrijs2005/tgsearcher/internal/logging"
	"github.com/dmitrijs2005/tgsearcher/internal/telegram"
)

const (
	adminChat = int64(500)
	userChat  = int64(600)
)

type fakeSession struct {
	history      []*telegram.Message
	chatNames    map[int64]string
	resolve      map[string]int64
	groupMembers map[int64][]int64
}

func (f *fakeSession) Subscribe(h telegram.EventHandler) {}

func (f *fakeSession) ForEachHistory(ctx context.Context, chatID, minID, maxID int64, fn func(*telegram.Message) error) error {
	for _, msg := range f.history {
		if msg.ID < minID || msg.ID > maxID {
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSession) ChatName(ctx context.Context, chatID int64) (string, error) {
	if name, ok := f.chatNames[chatID]; ok {
		return name, nil
	}
	return "", errors.New("channel is private")
}

func (f *fakeSession) ResolveChat(ctx context.Context, ref string) (int64, error) {
	if id, ok := f.resolve[ref]; ok {
		return id, nil
	}
	return 0, errors.New("no such entity")
}

func (f *fakeSession) FindChatIDs(ctx context.Context, keyword string) ([]int64, error) {
	var out []int64
	for id := range f.chatNames {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeSession) GroupMembers(ctx context.Context, chatID int64) ([]int64, error) {
	members, ok := f.groupMembers[chatID]
	if !ok {
		return nil, errors.New("not a group")
	}
	return members, nil
}

type renderedMsg struct {
	chatID  int64
	msgID   int64
	text    string
	buttons [][]telegram.Button
}

type fakeRenderer struct {
	nextID  int64
	sent    []renderedMsg
	edits   []renderedMsg
	deleted []int64
}

func (f *fakeRenderer) SendMessage(ctx context.Context, chatID int64, text string, buttons [][]telegram.Button) (int64, error) {
	f.nextID++
	f.sent = append(f.sent, renderedMsg{chatID: chatID, msgID: f.nextID, text: text, buttons: buttons})
	return f.nextID, nil
}

func (f *fakeRenderer) EditMessage(ctx context.Context, chatID, msgID int64, text string, buttons [][]telegram.Button) error {
	f.edits = append(f.edits, renderedMsg{chatID: chatID, msgID: msgID, text: text, buttons: buttons})
	return nil
}

func (f *fakeRenderer) DeleteMessage(ctx context.Context, chatID, msgID int64) error {
	f.deleted = append(f.deleted, msgID)
	return nil
}

func (f *fakeRenderer) lastSent(t *testing.T) renderedMsg {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	f       *Frontend
	b       *backend.Backend
	idx     *index.Memory
	r       *fakeRenderer
	store   *kvstore.Memory
	session *fakeSession
}

func newFixture(t *testing.T, session *fakeSession) *fixture {
	t.Helper()
	idx := index.NewMemory()
	b, err := backend.New(context.Background(), "fe", backend.Config{MonitorAll: true}, idx, session, nil, logging.NewNopLogger())
	require.NoError(t, err)

	r := &fakeRenderer{}
	store := kvstore.NewMemory()
	f := New("fe", Config{AdminChat: adminChat, PageLen: 10, BotUsername: "searchbot"}, b, r, store, logging.NewNopLogger())
	return &fixture{f: f, b: b, idx: idx, r: r, store: store, session: session}
}

func (fx *fixture) seed(t *testing.T, chatID int64, count int, textFmt string) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= count; i++ {
		msg := &telegram.Message{
			ChatID: chatID,
			ID:     int64(i),
			Text:   fmt.Sprintf(textFmt, i),
			Date:   time.Unix(1700000000+int64(i), 0).UTC(),
		}
		require.NoError(t, fx.b.OnNewMessage(ctx, msg))
	}
}

func userMsg(text string) *telegram.Message {
	return &telegram.Message{ChatID: userChat, ID: 1, Text: text, Date: time.Now()}
}

func adminMsg(text string) *telegram.Message {
	return &telegram.Message{ChatID: adminChat, ID: 1, Text: text, Date: time.Now()}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		data    string
		want    *Action
		wantErr bool
	}{
		{data: "search_page=3", want: &Action{Kind: ActionSearchPage, Page: 3}},
		{data: "select_chat=-123", want: &Action{Kind: ActionSelectChat, ChatID: -123}},
		{data: "search_page=zero", wantErr: true},
		{data: "search_page=0", wantErr: true},
		{data: "drop_index=1", wantErr: true},
		{data: "noequals", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := ParseAction(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrorUnknownAction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearch_RendersPageAndStoresCorrelation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeSession{chatNames: map[int64]string{111: "Gophers"}})
	fx.seed(t, 111, 3, "gopher message %d")

	fx.f.HandleMessage(ctx, userMsg("gopher"))

	sent := fx.r.lastSent(t)
	assert.Contains(t, sent.text, "Found 3 results")
	assert.Contains(t, sent.text, "Gophers")
	assert.Contains(t, sent.text, "https://t.me/c/111/3")

	require.Len(t, sent.buttons, 1)
	require.Len(t, sent.buttons[0], 3)
	assert.Empty(t, sent.buttons[0][0].Data, "prev must be inert on page 1")
	assert.Equal(t, "1 / 1", sent.buttons[0][1].Label)
	assert.Empty(t, sent.buttons[0][2].Data, "next must be inert on the last page")

	q, ok, err := fx.store.Get(ctx, fmt.Sprintf("fe:query_text:%d:%d", userChat, sent.msgID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "gopher", q)
}

func TestSearch_EmptyIndex(t *testing.T) {
	fx := newFixture(t, &fakeSession{})
	fx.f.HandleMessage(context.Background(), userMsg("anything"))
	assert.Contains(t, fx.r.lastSent(t).text, "index is empty")
}

func TestSearch_CommandPrefixStripped(t *testing.T) {
	fx := newFixture(t, &fakeSession{chatNames: map[int64]string{111: "Gophers"}})
	fx.seed(t, 111, 1, "needle %d")

	fx.f.HandleMessage(context.Background(), userMsg("/search needle"))
	assert.Contains(t, fx.r.lastSent(t).text, "Found 1 results")

	// bare "/search" yields no response at all
	before := len(fx.r.sent)
	fx.f.HandleMessage(context.Background(), userMsg("/search"))
	assert.Len(t, fx.r.sent, before)
}

func TestPageTurn(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeSession{chatNames: map[int64]string{111: "Gophers"}})
	fx.seed(t, 111, 25, "gopher message %d")

	fx.f.HandleMessage(ctx, userMsg("gopher"))
	resultMsg := fx.r.lastSent(t)
	assert.Equal(t, "1 / 3", resultMsg.buttons[0][1].Label)
	assert.Equal(t, "search_page=2", resultMsg.buttons[0][2].Data)

	fx.f.HandleCallback(ctx, &telegram.Callback{ChatID: userChat, MessageID: resultMsg.msgID, Data: "search_page=2"})

	require.Len(t, fx.r.edits, 1)
	edit := fx.r.edits[0]
	assert.Equal(t, resultMsg.msgID, edit.msgID, "the same rendered message is edited in place")
	assert.Equal(t, "2 / 3", edit.buttons[0][1].Label)
	assert.Equal(t, "search_page=1", edit.buttons[0][0].Data)
	assert.Equal(t, "search_page=3", edit.buttons[0][2].Data)

	fx.f.HandleCallback(ctx, &telegram.Callback{ChatID: userChat, MessageID: resultMsg.msgID, Data: "search_page=3"})
	last := fx.r.edits[len(fx.r.edits)-1]
	assert.Equal(t, "3 / 3", last.buttons[0][1].Label)
	assert.Empty(t, last.buttons[0][2].Data, "next must be inert on the last page")
}

func TestPageTurn_MissingCorrelationIsNoop(t *testing.T) {
	fx := newFixture(t, &fakeSession{})
	fx.f.HandleCallback(context.Background(), &telegram.Callback{ChatID: userChat, MessageID: 42, Data: "search_page=2"})
	assert.Empty(t, fx.r.edits)
	assert.Empty(t, fx.r.sent)
}

func TestCallback_UnknownActionReported(t *testing.T) {
	fx := newFixture(t, &fakeSession{})
	fx.f.HandleCallback(context.Background(), &telegram.Callback{ChatID: userChat, MessageID: 42, Data: "drop_index=1"})
	assert.Contains(t, fx.r.lastSent(t).text, "unknown action")
}

func TestCallback_EmptyDataIgnored(t *testing.T) {
	fx := newFixture(t, &fakeSession{})
	fx.f.HandleCallback(context.Background(), &telegram.Callback{ChatID: userChat, MessageID: 42, Data: ""})
	assert.Empty(t, fx.r.sent)
	assert.Empty(t, fx.r.edits)
}

func TestChatSelection_ScopesFollowupSearch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeSession{chatNames: map[int64]string{111: "Gophers", 222: "Rustaceans"}})
	fx.seed(t, 111, 2, "shared topic %d")
	fx.seed(t, 222, 3, "shared topic %d")
	fx.b.Policy().Add(111)
	fx.b.Policy().Add(222)

	fx.f.HandleMessage(ctx, userMsg("/chats Goph"))
	prompt := fx.r.lastSent(t)
	require.Len(t, prompt.buttons, 1, "keyword filters the selection buttons")
	assert.Equal(t, "select_chat=111", prompt.buttons[0][0].Data)

	fx.f.HandleCallback(ctx, &telegram.Callback{ChatID: userChat, MessageID: prompt.msgID, Data: "select_chat=111"})
	require.Len(t, fx.r.edits, 1)
	assert.Contains(t, fx.r.edits[0].text, "Gophers (111)")

	reply := userMsg("shared topic")
	reply.ReplyToID = prompt.msgID
	fx.f.HandleMessage(ctx, reply)

	result := fx.r.lastSent(t)
	assert.Contains(t, result.text, "Found 2 results", "scope must be limited to the selected chat")
	assert.NotContains(t, result.text, "Rustaceans")
}

func TestChats_NoneMonitored(t *testing.T) {
	fx := newFixture(t, &fakeSession{})
	fx.f.HandleMessage(context.Background(), userMsg("/chats"))
	assert.Contains(t, fx.r.lastSent(t).text, "No chats are monitored")
}

func TestRandom(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeSession{chatNames: map[int64]string{111: "Gophers"}})

	fx.f.HandleMessage(ctx, userMsg("/random"))
	assert.Contains(t, fx.r.lastSent(t).text, "index is empty")

	fx.seed(t, 111, 1, "only message %d")
	fx.f.HandleMessage(ctx, userMsg("/random"))
	got := fx.r.lastSent(t)
	assert.Contains(t, got.text, "Random message")
	assert.Contains(t, got.text, "https://t.me/c/111/1")
}

func TestUnknownCommand(t *testing.T) {
	fx := newFixture(t, &fakeSession{})
	fx.f.HandleMessage(context.Background(), userMsg("/bogus now"))
	assert.Contains(t, fx.r.lastSent(t).text, "unknown command /bogus")
}

func TestGroupMessage_IgnoredUnlessAddressed(t *testing.T) {
	fx := newFixture(t, &fakeSession{chatNames: map[int64]string{111: "Gophers"}})
	fx.seed(t, 111, 1, "needle %d")
	before := len(fx.r.sent)

	group := userMsg("needle")
	group.IsChannel = true
	fx.f.HandleMessage(context.Background(), group)
	assert.Len(t, fx.r.sent, before, "unaddressed group chatter is ignored")

	mentioned := userMsg("needle")
	mentioned.IsChannel = true
	mentioned.IsMentioned = true
	fx.f.HandleMessage(context.Background(), mentioned)
	assert.Greater(t, len(fx.r.sent), before)

	tagged := userMsg("@searchbot needle")
	tagged.IsChannel = true
	fx.f.HandleMessage(context.Background(), tagged)
	assert.Contains(t, fx.r.lastSent(t).text, "Found 1 results")
}

func newPrivateFixture(t *testing.T, session *fakeSession, whitelist, groups []int64) *fixture {
	t.Helper()
	idx := index.NewMemory()
	b, err := backend.New(context.Background(), "fe", backend.Config{MonitorAll: true}, idx, session, nil, logging.NewNopLogger())
	require.NoError(t, err)

	r := &fakeRenderer{}
	store := kvstore.NewMemory()
	f := New("fe", Config{
		AdminChat:              adminChat,
		PageLen:                10,
		BotUsername:            "searchbot",
		PrivateMode:            true,
		PrivateWhitelist:       whitelist,
		PrivateWhitelistGroups: groups,
	}, b, r, store, logging.NewNopLogger())
	return &fixture{f: f, b: b, idx: idx, r: r, store: store, session: session}
}

func TestPrivateMode_RejectsNonWhitelistedSender(t *testing.T) {
	ctx := context.Background()
	fx := newPrivateFixture(t, &fakeSession{}, []int64{7}, nil)

	stranger := userMsg("/random")
	stranger.Sender = &telegram.Sender{ID: 42}
	fx.f.HandleMessage(ctx, stranger)
	assert.Contains(t, fx.r.lastSent(t).text, "privacy settings")

	member := userMsg("/random")
	member.Sender = &telegram.Sender{ID: 7}
	fx.f.HandleMessage(ctx, member)
	assert.Contains(t, fx.r.lastSent(t).text, "index is empty", "whitelisted sender must be served")
}

func TestPrivateMode_AdminAlwaysAllowed(t *testing.T) {
	fx := newPrivateFixture(t, &fakeSession{}, nil, nil)
	fx.f.HandleMessage(context.Background(), adminMsg("/stat"))
	assert.Contains(t, fx.r.lastSent(t).text, "Total messages indexed")
}

func TestPrivateMode_WhitelistedChatAllowed(t *testing.T) {
	ctx := context.Background()
	fx := newPrivateFixture(t, &fakeSession{}, []int64{600}, nil)

	// the raw channel form of chat 600 is accepted via canonicalization
	msg := &telegram.Message{ChatID: -1000000000600, ID: 1, Text: "/random", Date: time.Now(), Sender: &telegram.Sender{ID: 42}}
	fx.f.HandleMessage(ctx, msg)
	assert.Contains(t, fx.r.lastSent(t).text, "index is empty")
}

func TestPrivateMode_GroupExpansion(t *testing.T) {
	ctx := context.Background()
	fx := newPrivateFixture(t, &fakeSession{groupMembers: map[int64][]int64{999: {42, 43}}}, nil, []int64{999, 1000})

	stranger := userMsg("/random")
	stranger.Sender = &telegram.Sender{ID: 42}
	fx.f.HandleMessage(ctx, stranger)
	assert.Contains(t, fx.r.lastSent(t).text, "privacy settings")

	// group 1000 is unreadable and must only be skipped
	require.NoError(t, fx.f.Start(ctx))

	fx.f.HandleMessage(ctx, stranger)
	assert.Contains(t, fx.r.lastSent(t).text, "index is empty", "expanded group member must be served")
}

func TestOwnMessagesIgnored(t *testing.T) {
	fx := newFixture(t, &fakeSession{})
	own := userMsg("/random")
	own.Sender = &telegram.Sender{ID: 5, IsSelf: true}
	fx.f.HandleMessage(context.Background(), own)
	assert.Empty(t, fx.r.sent)
}

func TestAdminStat(t *testing.T) {
	fx := newFixture(t, &fakeSession{chatNames: map[int64]string{111: "Gophers"}})
	fx.seed(t, 111, 2, "message %d")

	fx.f.HandleMessage(context.Background(), adminMsg("/stat"))
	assert.Contains(t, fx.r.lastSent(t).text, "Total messages indexed: 2")
}

func TestAdminCommandsRejectedForUsers(t *testing.T) {
	fx := newFixture(t, &fakeSession{})
	fx.f.HandleMessage(context.Background(), userMsg("/stat"))
	assert.Contains(t, fx.r.lastSent(t).text, "unknown command /stat")
}

func TestParseDownloadArgs(t *testing.T) {
	args, err := parseDownloadArgs([]string{"--min", "10", "--max=500", "--cloud", "--overwrite", "@gang", "777"})
	require.NoError(t, err)
	assert.EqualValues(t, 10, args.minID)
	assert.EqualValues(t, 500, args.maxID)
	assert.True(t, args.cloud)
	assert.False(t, args.archive)
	assert.True(t, args.overwrite)
	assert.Equal(t, []string{"@gang", "777"}, args.chats)

	args, err = parseDownloadArgs(nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, args.minID)
	assert.EqualValues(t, backend.MaxMessageID, args.maxID)

	_, err = parseDownloadArgs([]string{"--min"})
	assert.Error(t, err)
	_, err = parseDownloadArgs([]string{"--turbo"})
	assert.Error(t, err)
}

func TestDownloadChat(t *testing.T) {
	ctx := context.Background()
	history := make([]*telegram.Message, 0, 1200)
	for i := 1; i <= 1200; i++ {
		history = append(history, &telegram.Message{
			ChatID: 111,
			ID:     int64(i),
			Text:   fmt.Sprintf("archived message %d", i),
			Date:   time.Unix(1700000000+int64(i), 0).UTC(),
		})
	}
	fx := newFixture(t, &fakeSession{
		history:   history,
		chatNames: map[int64]string{111: "Gophers"},
		resolve:   map[string]int64{"@gang": 111},
	})

	fx.f.HandleMessage(ctx, adminMsg("/download_chat @gang"))

	count, err := fx.idx.CountByChat(ctx, 111)
	require.NoError(t, err)
	assert.EqualValues(t, 1200, count)

	final := fx.r.lastSent(t)
	assert.Contains(t, final.text, "download finished, 1200 messages")

	// the progress message was created, edited in place and deleted
	var progress []renderedMsg
	for _, m := range fx.r.sent {
		if m.msgID != final.msgID {
			progress = append(progress, m)
		}
	}
	require.Len(t, progress, 1)
	assert.Contains(t, progress[0].text, "messages remaining")
	assert.NotEmpty(t, fx.r.edits)
	assert.Equal(t, []int64{progress[0].msgID}, fx.r.deleted)
}

func TestDownloadChat_BlindRerunRefused(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeSession{
		history:   []*telegram.Message{{ChatID: 111, ID: 1, Text: "one", Date: time.Now()}},
		chatNames: map[int64]string{111: "Gophers"},
		resolve:   map[string]int64{"@gang": 111},
	})

	fx.f.HandleMessage(ctx, adminMsg("/download_chat @gang"))
	fx.f.HandleMessage(ctx, adminMsg("/download_chat @gang"))
	assert.Contains(t, fx.r.lastSent(t).text, "is not empty")
}

func TestDownloadChat_NoChatGiven(t *testing.T) {
	fx := newFixture(t, &fakeSession{})
	fx.f.HandleMessage(context.Background(), adminMsg("/download_chat --min 5"))
	assert.Contains(t, fx.r.lastSent(t).text, "specify at least one chat")
}

func TestDownloadChat_UnresolvableChat(t *testing.T) {
	fx := newFixture(t, &fakeSession{})
	fx.f.HandleMessage(context.Background(), adminMsg("/download_chat @nobody"))
	assert.Contains(t, fx.r.lastSent(t).text, `Cannot find a chat or user matching "@nobody"`)
}

func TestMonitorChat(t *testing.T) {
	fx := newFixture(t, &fakeSession{
		chatNames: map[int64]string{111: "Gophers"},
		resolve:   map[string]int64{"@gang": -1000000000111},
	})

	fx.f.HandleMessage(context.Background(), adminMsg("/monitor_chat @gang"))
	assert.Contains(t, fx.r.lastSent(t).text, "Gophers (111) is now monitored")
	assert.Equal(t, []int64{111}, fx.b.Policy().Monitored())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeSession{
		chatNames: map[int64]string{111: "Gophers", 222: "Rustaceans"},
		resolve:   map[string]int64{"@gang": 111},
	})
	fx.seed(t, 111, 2, "a %d")
	fx.seed(t, 222, 2, "b %d")

	fx.f.HandleMessage(ctx, adminMsg("/clear"))
	assert.Contains(t, fx.r.lastSent(t).text, "/clear all")

	fx.f.HandleMessage(ctx, adminMsg("/clear @gang"))
	assert.Contains(t, fx.r.lastSent(t).text, "Gophers (111) was cleared")
	empty, err := fx.idx.IsEmpty(ctx, 111)
	require.NoError(t, err)
	assert.True(t, empty)

	fx.f.HandleMessage(ctx, adminMsg("/clear all"))
	assert.Contains(t, fx.r.lastSent(t).text, "whole index was cleared")
	empty, err = fx.idx.IsEmpty(ctx, 0)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestFindChatID(t *testing.T) {
	fx := newFixture(t, &fakeSession{chatNames: map[int64]string{111: "Gophers"}})

	fx.f.HandleMessage(context.Background(), adminMsg("/find_chat_id"))
	assert.Contains(t, fx.r.lastSent(t).text, "keyword must not be empty")

	fx.f.HandleMessage(context.Background(), adminMsg("/find_chat_id Goph"))
	assert.Contains(t, fx.r.lastSent(t).text, "<pre>111</pre>")
}
