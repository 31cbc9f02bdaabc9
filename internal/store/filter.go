package store

import (
	"fmt"
	"strings"
)

// condBuilder accumulates WHERE conditions with positional placeholders.
type condBuilder struct {
	conds []string
	args  []any
}

func (b *condBuilder) add(format string, args ...any) {
	placeholders := make([]any, len(args))
	for i := range args {
		b.args = append(b.args, args[i])
		placeholders[i] = fmt.Sprintf("$%d", len(b.args))
	}
	b.conds = append(b.conds, fmt.Sprintf(format, placeholders...))
}

func (b *condBuilder) where() string {
	return strings.Join(b.conds, " AND ")
}

// addCategories appends the tag-set membership condition: a channel matches a
// category when its raw group_title equals it, or the category appears as a
// leading, trailing, or interior element of the semicolon-delimited list.
// "Sportsline" must not match the category "Sport", hence the delimiters.
func (b *condBuilder) addCategories(categories []string) {
	if len(categories) == 0 {
		return
	}
	per := make([]string, 0, len(categories))
	for _, cat := range categories {
		group := make([]string, 4)
		for i, pattern := range []string{cat, cat + ";%", "%;" + cat, "%;" + cat + ";%"} {
			b.args = append(b.args, pattern)
			op := "LIKE"
			if i == 0 {
				op = "="
			}
			group[i] = fmt.Sprintf("group_title %s $%d", op, len(b.args))
		}
		per = append(per, "("+strings.Join(group, " OR ")+")")
	}
	b.conds = append(b.conds, "("+strings.Join(per, " OR ")+")")
}

// channelFilterWhere builds the WHERE clause shared by the alphabetical
// listing and its count query.
func channelFilterWhere(playlistID int64, f ChannelFilter) (string, []any) {
	b := &condBuilder{}
	b.add("playlist_id = %s", playlistID)
	b.addCategories(f.Categories)
	if f.Search != "" {
		b.add("name ILIKE '%%' || %s || '%%'", f.Search)
	}
	return b.where(), b.args
}
