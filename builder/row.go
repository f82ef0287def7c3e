package builder

import (
	"maps"
	"slices"
	"strings"

	"github.com/poiesic/answerbank/core"
)

// Metadata keys set from well-known columns.
const (
	MetaSourceID = "source_id"
	MetaAgency1  = "agency1"
	MetaAgency2  = "agency2"
)

// Row is one parsed corpus entry.
type Row struct {
	Line     int       // 1-based position in the source, for reporting
	Code     string    // optional; preferred stable key
	Path     [3]string // major, middle, minor category labels
	Question string
	Answer   string
	Metadata map[string]string
}

// Key returns the row's stable identity across rebuilds: its code when it
// has one, otherwise the category path plus the question text.
func (r *Row) Key() string {
	if r.Code != "" {
		return "code:" + r.Code
	}
	return "row:" + strings.Join([]string{r.Path[0], r.Path[1], r.Path[2], r.Question}, "\x1f")
}

// EmbeddingText is the text embedded for the row.
func (r *Row) EmbeddingText() string {
	return embeddingText(r.Question, r.Answer)
}

func embeddingText(question, answer string) string {
	return question + "\n" + answer
}

// contentHash changes whenever anything stored for the row changes.
func (r *Row) contentHash() string {
	parts := []string{r.Code, r.Path[0], r.Path[1], r.Path[2], r.Question, r.Answer}
	for _, k := range slices.Sorted(maps.Keys(r.Metadata)) {
		parts = append(parts, k, r.Metadata[k])
	}
	return core.ContentHash(parts...)
}

// normalize trims surrounding whitespace from every field.
func (r *Row) normalize() {
	r.Code = strings.TrimSpace(r.Code)
	for i := range r.Path {
		r.Path[i] = strings.TrimSpace(r.Path[i])
	}
	r.Question = strings.TrimSpace(r.Question)
	r.Answer = strings.TrimSpace(r.Answer)
}

// DeriveCategories builds the category nodes implied by the rows' paths.
// Rows with an incomplete path contribute nothing; they are rejected later
// during validation.
func DeriveCategories(rows []Row) []*core.Category {
	seen := make(map[core.ID]bool)
	var out []*core.Category
	add := func(level core.Level, parent core.ID, path ...string) core.ID {
		id := core.CategoryID(path...)
		if !seen[id] {
			seen[id] = true
			out = append(out, &core.Category{Id: id, ParentId: parent, Label: path[len(path)-1], Level: level})
		}
		return id
	}

	for _, row := range rows {
		var p [3]string
		for i, label := range row.Path {
			p[i] = strings.TrimSpace(label)
		}
		if p[0] == "" || p[1] == "" || p[2] == "" {
			continue
		}
		major := add(core.LevelMajor, 0, p[0])
		middle := add(core.LevelMiddle, major, p[0], p[1])
		add(core.LevelMinor, middle, p[0], p[1], p[2])
	}
	return out
}
