package frontend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tgsearcher/internal/index"
	"github.com/dmitrijs2005/tgsearcher/internal/telegram"
)

const hitTimeLayout = "2006-01-02 15:04"

// renderResults renders one page of hits as an HTML message body. Content is
// already escaped at ingestion; chat titles are resolved per hit.
func (f *Frontend) renderResults(ctx context.Context, result *index.SearchResult, elapsed time.Duration) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results in %.3f seconds:\n\n", result.TotalResults, elapsed.Seconds())
	for _, hit := range result.Hits {
		title := f.backend.TranslateChatID(ctx, hit.Msg.ChatID)
		when := hit.Msg.PostTime.Format(hitTimeLayout)
		if hit.Msg.Sender != "" {
			fmt.Fprintf(&sb, "<b>%s (<u>%s</u>) [%s]</b>\n", title, hit.Msg.Sender, when)
		} else {
			fmt.Fprintf(&sb, "<b>%s [%s]</b>\n", title, when)
		}
		fmt.Fprintf(&sb, "<a href=\"%s\">%s</a>\n", hit.Msg.URL, hit.Highlighted)
	}
	return sb.String()
}

// renderPageButtons builds the paging strip: prev, "cur / total" indicator,
// next. A control that cannot apply (page 1, last page) is rendered inert
// with empty payload instead of being dropped, keeping the strip stable.
func renderPageButtons(result *index.SearchResult, curPage, pageLen int) [][]telegram.Button {
	prev := telegram.Button{Label: " "}
	if curPage > 1 {
		prev = telegram.Button{Label: "⬅️ Prev", Data: fmt.Sprintf("%s=%d", ActionSearchPage, curPage-1)}
	}

	next := telegram.Button{Label: " "}
	if !result.IsLastPage {
		next = telegram.Button{Label: "Next ➡️", Data: fmt.Sprintf("%s=%d", ActionSearchPage, curPage+1)}
	}

	totalPages := (result.TotalResults + uint64(pageLen) - 1) / uint64(pageLen)
	indicator := telegram.Button{Label: fmt.Sprintf("%d / %d", curPage, totalPages)}

	return [][]telegram.Button{{prev, indicator, next}}
}
