package comment

import (
	"strings"
	"unicode/utf8"

	"github.com/VitaminP8/commentree/internal/tree"
)

// ToNode turns a fetched comment into an unloaded tree node.
func ToNode(item Item) *tree.Node {
	return &tree.Node{
		ID:           item.ID,
		Content:      item.Content,
		Author:       item.Author,
		CreatedAt:    item.TimeCreated,
		SumRating:    item.SumRating,
		UserVote:     tree.Vote(item.UserVote),
		RepliesCount: item.RepliesCount,
		Children:     tree.Unloaded(),
	}
}

func ToNodes(items []Item) []*tree.Node {
	nodes := make([]*tree.Node, 0, len(items))
	for _, item := range items {
		nodes = append(nodes, ToNode(item))
	}
	return nodes
}

// ValidContent checks the length limit the comment API enforces.
func ValidContent(content string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	return n > 0 && utf8.RuneCountInString(content) <= MaxContentLength
}

// ValidVote reports whether value can be cast (retraction is a separate call).
func ValidVote(value int) bool {
	return value == 1 || value == -1
}

// ClampPageSize applies the API's default and maximum page sizes.
func ClampPageSize(pageSize int) int {
	switch {
	case pageSize <= 0:
		return DefaultPageSize
	case pageSize > MaxPageSize:
		return MaxPageSize
	default:
		return pageSize
	}
}
