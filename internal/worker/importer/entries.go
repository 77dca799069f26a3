package importer

import (
	"strings"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/factcheck/internal/model"
)

// SubjectIDFor はエントリのGUID（なければリンク）から決定的な記事IDを生成する。
// GUIDもリンクもない場合は空文字を返す。
func SubjectIDFor(entry model.ParsedEntry) string {
	key := entry.GuidOrID
	if key == "" {
		key = entry.Link
	}
	if key == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// convertGofeedItems はgofeedの記事をmodel.ParsedEntryに変換する。
func convertGofeedItems(items []*gofeed.Item) []model.ParsedEntry {
	entries := make([]model.ParsedEntry, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		entry := model.ParsedEntry{
			GuidOrID: item.GUID,
			Title:    item.Title,
			Link:     item.Link,
			Content:  item.Content,
		}

		// Contentが空の場合はDescriptionを使用
		if entry.Content == "" {
			entry.Content = item.Description
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			entry.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			entry.PublishedAt = &t
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if entry.Link == "" &&
			(strings.HasPrefix(entry.GuidOrID, "http://") || strings.HasPrefix(entry.GuidOrID, "https://")) {
			entry.Link = entry.GuidOrID
		}

		entries = append(entries, entry)
	}

	return entries
}
