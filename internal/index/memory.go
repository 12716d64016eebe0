package index

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tgsearcher/internal/chatid"
	"github.com/dmitrijs2005/tgsearcher/internal/common"
)

// Memory is an in-memory Indexer. Matching is case-insensitive: a record
// matches when every whitespace-separated query term occurs in its content.
// Results are ordered newest-first, ties broken by URL.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*IndexMsg
}

var _ Indexer = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*IndexMsg)}
}

func (m *Memory) Add(ctx context.Context, msg *IndexMsg) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.docs[msg.URL] = &cp
	return nil
}

func (m *Memory) AddBatch(ctx context.Context, msgs []*IndexMsg) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		cp := *msg
		m.docs[msg.URL] = &cp
	}
	return nil
}

func (m *Memory) Update(ctx context.Context, url, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[url]; ok {
		doc.Content = content
		return nil
	}
	// edit raced backfill: treat as an add with what we know. The edit time
	// stands in for the post time so the record still sorts as recent.
	cID, _, err := chatid.ParseMessageURL(url)
	if err != nil {
		return err
	}
	m.docs[url] = &IndexMsg{Content: content, URL: url, ChatID: cID, PostTime: time.Now()}
	return nil
}

func (m *Memory) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, url)
	return nil
}

func (m *Memory) Search(ctx context.Context, q string, inChats []int64, pageLen, pageNum int) (*SearchResult, error) {
	terms := strings.Fields(strings.ToLower(q))

	scope := make(map[int64]struct{}, len(inChats))
	for _, id := range inChats {
		scope[chatid.Canonicalize(id)] = struct{}{}
	}

	m.mu.RLock()
	var matched []*IndexMsg
	for _, doc := range m.docs {
		if len(scope) > 0 {
			if _, ok := scope[doc.ChatID]; !ok {
				continue
			}
		}
		if matchesAll(doc.Content, terms) {
			matched = append(matched, doc)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].PostTime.Equal(matched[j].PostTime) {
			return matched[i].PostTime.After(matched[j].PostTime)
		}
		return matched[i].URL < matched[j].URL
	})

	total := uint64(len(matched))
	start := (pageNum - 1) * pageLen
	if start < 0 {
		start = 0
	}
	end := start + pageLen
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	hits := make([]*SearchHit, 0, end-start)
	for _, doc := range matched[start:end] {
		cp := *doc
		hits = append(hits, &SearchHit{Msg: &cp, Highlighted: highlight(doc.Content, terms)})
	}

	return &SearchResult{
		Hits:         hits,
		TotalResults: total,
		IsLastPage:   uint64(end) >= total,
	}, nil
}

func (m *Memory) CountByChat(ctx context.Context, chatID int64) (uint64, error) {
	id := chatid.Canonicalize(chatID)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n uint64
	for _, doc := range m.docs {
		if doc.ChatID == id {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListIndexedChats(ctx context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[int64]struct{})
	for _, doc := range m.docs {
		seen[doc.ChatID] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) RetrieveRandom(ctx context.Context) (*IndexMsg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.docs) == 0 {
		return nil, common.ErrorIndexEmpty
	}
	urls := make([]string, 0, len(m.docs))
	for url := range m.docs {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	cp := *m.docs[urls[rand.Intn(len(urls))]]
	return &cp, nil
}

func (m *Memory) DocCount(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.docs)), nil
}

func (m *Memory) IsEmpty(ctx context.Context, chatID int64) (bool, error) {
	if chatID == 0 {
		n, _ := m.DocCount(ctx)
		return n == 0, nil
	}
	n, _ := m.CountByChat(ctx, chatID)
	return n == 0, nil
}

func (m *Memory) DeleteByChat(ctx context.Context, chatID int64) error {
	id := chatid.Canonicalize(chatID)
	m.mu.Lock()
	defer m.mu.Unlock()
	for url, doc := range m.docs {
		if doc.ChatID == id {
			delete(m.docs, url)
		}
	}
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]*IndexMsg)
	return nil
}

func (m *Memory) Close() error { return nil }

func matchesAll(content string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lc := strings.ToLower(content)
	for _, term := range terms {
		if !strings.Contains(lc, term) {
			return false
		}
	}
	return true
}

func highlight(content string, terms []string) string {
	out := content
	for _, term := range terms {
		lc := strings.ToLower(out)
		if i := strings.Index(lc, term); i >= 0 {
			out = out[:i] + "<b>" + out[i:i+len(term)] + "</b>" + out[i+len(term):]
		}
	}
	return out
}
