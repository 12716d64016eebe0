package index

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/dmitrijs2005/tgsearcher/internal/chatid"
	"github.com/dmitrijs2005/tgsearcher/internal/common"
)

// scanPageSize bounds how many ids one maintenance scan pulls at a time
// (chat listing, per-chat deletion, clear).
const scanPageSize = 1000

// Bleve is the on-disk Indexer. The engine assumes single-writer semantics,
// so the write path serializes on one mutex; a concurrent writer blocks here
// instead of hitting the engine's lock.
type Bleve struct {
	wmu sync.Mutex
	idx bleve.Index
}

var _ Indexer = (*Bleve)(nil)

// bleveDoc is the stored shape. Times are RFC3339 UTC so the keyword-analyzed
// post_time field sorts chronologically.
type bleveDoc struct {
	Content  string `json:"content"`
	URL      string `json:"url"`
	ChatID   string `json:"chat_id"`
	PostTime string `json:"post_time"`
	Sender   string `json:"sender"`
}

func buildMapping() mapping.IndexMapping {
	dm := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	dm.AddFieldMappingsAt("content", content)

	sender := bleve.NewTextFieldMapping()
	sender.IncludeInAll = false
	dm.AddFieldMappingsAt("sender", sender)

	for _, name := range []string{"url", "chat_id", "post_time"} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.IncludeInAll = false
		dm.AddFieldMappingsAt(name, f)
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = dm
	return im
}

// OpenBleve opens (or creates) the index at path. clean drops any existing
// index first.
func OpenBleve(path string, clean bool) (*Bleve, error) {
	if clean {
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("cleaning index dir: %w", err)
		}
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}

	return &Bleve{idx: idx}, nil
}

func docFromMsg(msg *IndexMsg) *bleveDoc {
	return &bleveDoc{
		Content:  msg.Content,
		URL:      msg.URL,
		ChatID:   strconv.FormatInt(msg.ChatID, 10),
		PostTime: msg.PostTime.UTC().Format(time.RFC3339),
		Sender:   msg.Sender,
	}
}

func msgFromHit(hit *search.DocumentMatch) *IndexMsg {
	msg := &IndexMsg{URL: hit.ID}
	if s, ok := hit.Fields["content"].(string); ok {
		msg.Content = s
	}
	if s, ok := hit.Fields["chat_id"].(string); ok {
		msg.ChatID, _ = strconv.ParseInt(s, 10, 64)
	}
	if s, ok := hit.Fields["post_time"].(string); ok {
		msg.PostTime, _ = time.Parse(time.RFC3339, s)
	}
	if s, ok := hit.Fields["sender"].(string); ok {
		msg.Sender = s
	}
	return msg
}

func (b *Bleve) Add(ctx context.Context, msg *IndexMsg) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if err := b.idx.Index(msg.URL, docFromMsg(msg)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
	}
	return nil
}

func (b *Bleve) AddBatch(ctx context.Context, msgs []*IndexMsg) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	batch := b.idx.NewBatch()
	for _, msg := range msgs {
		if err := batch.Index(msg.URL, docFromMsg(msg)); err != nil {
			return fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
		}
	}
	if err := b.idx.Batch(batch); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
	}
	return nil
}

func (b *Bleve) Update(ctx context.Context, url, content string) error {
	existing, err := b.getByURL(ctx, url)
	if err != nil {
		return err
	}
	if existing == nil {
		// edit raced backfill: treat as an add with what we know
		cID, _, perr := chatid.ParseMessageURL(url)
		if perr != nil {
			return perr
		}
		existing = &IndexMsg{URL: url, ChatID: cID, PostTime: time.Now()}
	}
	existing.Content = content
	return b.Add(ctx, existing)
}

func (b *Bleve) Delete(ctx context.Context, url string) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	// deleting an unknown id is a no-op in the engine as well
	if err := b.idx.Delete(url); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
	}
	return nil
}

func (b *Bleve) Search(ctx context.Context, q string, inChats []int64, pageLen, pageNum int) (*SearchResult, error) {
	mq := bleve.NewMatchQuery(q)
	mq.SetField("content")

	var final = bleve.NewConjunctionQuery(mq)
	if len(inChats) > 0 {
		dj := bleve.NewDisjunctionQuery()
		for _, id := range inChats {
			tq := bleve.NewTermQuery(strconv.FormatInt(chatid.Canonicalize(id), 10))
			tq.SetField("chat_id")
			dj.AddQuery(tq)
		}
		final.AddQuery(dj)
	}

	if pageNum < 1 {
		pageNum = 1
	}
	from := (pageNum - 1) * pageLen

	req := bleve.NewSearchRequestOptions(final, pageLen, from, false)
	req.Fields = []string{"*"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.SortBy([]string{"-post_time", "_id"})

	res, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
	}

	hits := make([]*SearchHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		msg := msgFromHit(hit)
		highlighted := msg.Content
		if frags, ok := hit.Fragments["content"]; ok && len(frags) > 0 {
			highlighted = frags[0]
		}
		hits = append(hits, &SearchHit{Msg: msg, Highlighted: highlighted})
	}

	return &SearchResult{
		Hits:         hits,
		TotalResults: res.Total,
		IsLastPage:   uint64(from+len(hits)) >= res.Total,
	}, nil
}

func (b *Bleve) CountByChat(ctx context.Context, chatID int64) (uint64, error) {
	tq := bleve.NewTermQuery(strconv.FormatInt(chatid.Canonicalize(chatID), 10))
	tq.SetField("chat_id")
	req := bleve.NewSearchRequestOptions(tq, 0, 0, false)
	res, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
	}
	return res.Total, nil
}

func (b *Bleve) ListIndexedChats(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]struct{})
	for from := 0; ; {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), scanPageSize, from, false)
		req.Fields = []string{"chat_id"}
		res, err := b.idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
		}
		if len(res.Hits) == 0 {
			break
		}
		for _, hit := range res.Hits {
			if s, ok := hit.Fields["chat_id"].(string); ok {
				if id, perr := strconv.ParseInt(s, 10, 64); perr == nil {
					seen[id] = struct{}{}
				}
			}
		}
		from += len(res.Hits)
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (b *Bleve) RetrieveRandom(ctx context.Context) (*IndexMsg, error) {
	total, err := b.DocCount(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, common.ErrorIndexEmpty
	}
	from := rand.Int63n(int64(total))
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), 1, int(from), false)
	req.Fields = []string{"*"}
	res, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
	}
	if len(res.Hits) == 0 {
		return nil, common.ErrorIndexEmpty
	}
	return msgFromHit(res.Hits[0]), nil
}

func (b *Bleve) DocCount(ctx context.Context) (uint64, error) {
	n, err := b.idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
	}
	return n, nil
}

func (b *Bleve) IsEmpty(ctx context.Context, chatID int64) (bool, error) {
	if chatID == 0 {
		n, err := b.DocCount(ctx)
		return n == 0, err
	}
	n, err := b.CountByChat(ctx, chatID)
	return n == 0, err
}

func (b *Bleve) DeleteByChat(ctx context.Context, chatID int64) error {
	tq := bleve.NewTermQuery(strconv.FormatInt(chatid.Canonicalize(chatID), 10))
	tq.SetField("chat_id")
	return b.deleteMatching(ctx, tq)
}

func (b *Bleve) Clear(ctx context.Context) error {
	return b.deleteMatching(ctx, bleve.NewMatchAllQuery())
}

// deleteMatching scans for matching ids page by page and removes them in
// batches until nothing matches.
func (b *Bleve) deleteMatching(ctx context.Context, q query.Query) error {
	for {
		req := bleve.NewSearchRequestOptions(q, scanPageSize, 0, false)
		res, err := b.idx.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}

		b.wmu.Lock()
		batch := b.idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		err = b.idx.Batch(batch)
		b.wmu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
		}
	}
}

func (b *Bleve) Close() error {
	return b.idx.Close()
}

func (b *Bleve) getByURL(ctx context.Context, url string) (*IndexMsg, error) {
	q := bleve.NewDocIDQuery([]string{url})
	req := bleve.NewSearchRequestOptions(q, 1, 0, false)
	req.Fields = []string{"*"}
	res, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorIndexUnavailable, err)
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}
	return msgFromHit(res.Hits[0]), nil
}
