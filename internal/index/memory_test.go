package index

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/tgsearcher/internal/chatid"
	"github.com/dmitrijs2005/tgsearcher/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMsg(chatID, msgID int64, content string) *IndexMsg {
	return &IndexMsg{
		Content:  content,
		URL:      chatid.MessageURL(chatID, msgID),
		ChatID:   chatid.Canonicalize(chatID),
		PostTime: time.Date(2024, 1, 1, 0, 0, int(msgID), 0, time.UTC),
		Sender:   "tester",
	}
}

func TestMemory_AddThenDeleteLeavesChatEmpty(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	msg := newMsg(100, 1, "hello")
	require.NoError(t, m.Add(ctx, msg))

	empty, err := m.IsEmpty(ctx, 100)
	require.NoError(t, err)
	assert.False(t, empty)

	require.NoError(t, m.Delete(ctx, msg.URL))

	empty, err = m.IsEmpty(ctx, 100)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestMemory_DeleteAbsentIsNoop(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Delete(context.Background(), "https://t.me/c/1/1"))
}

func TestMemory_UpdateUpsertsLikeAdd(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	url := chatid.MessageURL(100, 5)
	require.NoError(t, m.Update(ctx, url, "created by update"))

	res, err := m.Search(ctx, "created", nil, 10, 1)
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, url, res.Hits[0].Msg.URL)
	assert.Equal(t, int64(100), res.Hits[0].Msg.ChatID)

	// a second update replaces content in place, count unchanged
	require.NoError(t, m.Update(ctx, url, "edited"))
	n, err := m.DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestMemory_UpsertedRecordSortsAsRecent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, newMsg(100, 1, "common word old")))

	// an edit of a never-indexed message gets the edit time as its post
	// time, so it ranks as the most recent record
	url := chatid.MessageURL(100, 5)
	require.NoError(t, m.Update(ctx, url, "common word upserted"))

	res, err := m.Search(ctx, "common", nil, 10, 1)
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, url, res.Hits[0].Msg.URL)
	assert.False(t, res.Hits[0].Msg.PostTime.IsZero())
}

func TestMemory_SearchPagination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := int64(1); i <= 25; i++ {
		require.NoError(t, m.Add(ctx, newMsg(7, i, fmt.Sprintf("payload message %d", i))))
	}

	page1, err := m.Search(ctx, "payload", nil, 10, 1)
	require.NoError(t, err)
	assert.Len(t, page1.Hits, 10)
	assert.Equal(t, uint64(25), page1.TotalResults)
	assert.False(t, page1.IsLastPage)

	page2, err := m.Search(ctx, "payload", nil, 10, 2)
	require.NoError(t, err)
	assert.Len(t, page2.Hits, 10)
	assert.False(t, page2.IsLastPage)

	page3, err := m.Search(ctx, "payload", nil, 10, 3)
	require.NoError(t, err)
	assert.Len(t, page3.Hits, 5)
	assert.True(t, page3.IsLastPage)
}

func TestMemory_SearchNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, newMsg(7, 1, "alpha old")))
	require.NoError(t, m.Add(ctx, newMsg(7, 2, "alpha new")))

	res, err := m.Search(ctx, "alpha", nil, 10, 1)
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "alpha new", res.Hits[0].Msg.Content)
}

func TestMemory_SearchChatScope(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, newMsg(1, 1, "shared term")))
	require.NoError(t, m.Add(ctx, newMsg(2, 1, "shared term")))

	res, err := m.Search(ctx, "shared", []int64{2}, 10, 1)
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, int64(2), res.Hits[0].Msg.ChatID)

	// raw full-form scope ids are canonicalized
	res, err = m.Search(ctx, "shared", []int64{-1000000000002}, 10, 1)
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)
}

func TestMemory_SearchHighlights(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, newMsg(1, 1, "say hello twice")))

	res, err := m.Search(ctx, "hello", nil, 10, 1)
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "say <b>hello</b> twice", res.Hits[0].Highlighted)
}

func TestMemory_ListIndexedChatsAndCounts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, newMsg(1, 1, "a")))
	require.NoError(t, m.Add(ctx, newMsg(1, 2, "b")))
	require.NoError(t, m.Add(ctx, newMsg(9, 1, "c")))

	chats, err := m.ListIndexedChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 9}, chats)

	n, err := m.CountByChat(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestMemory_RetrieveRandomEmpty(t *testing.T) {
	_, err := NewMemory().RetrieveRandom(context.Background())
	assert.ErrorIs(t, err, common.ErrorIndexEmpty)
}

func TestMemory_DeleteByChatAndClear(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, newMsg(1, 1, "a")))
	require.NoError(t, m.Add(ctx, newMsg(2, 1, "b")))

	require.NoError(t, m.DeleteByChat(ctx, 1))
	empty, _ := m.IsEmpty(ctx, 1)
	assert.True(t, empty)
	empty, _ = m.IsEmpty(ctx, 0)
	assert.False(t, empty)

	require.NoError(t, m.Clear(ctx))
	empty, _ = m.IsEmpty(ctx, 0)
	assert.True(t, empty)
}

func TestMemory_AddBatchAllOrNothingVisibility(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	batch := []*IndexMsg{newMsg(3, 1, "x"), newMsg(3, 2, "y"), newMsg(3, 3, "z")}
	require.NoError(t, m.AddBatch(ctx, batch))

	n, err := m.CountByChat(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}
