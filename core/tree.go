package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// CategoryTree is an immutable three-level category hierarchy.
// It is built once per store version and shared by concurrent readers.
type CategoryTree struct {
	nodes    map[ID]*Category
	children map[ID][]*Category // parent ID (0 = root) -> children ordered by label
	leaves   map[ID][]ID        // category ID (0 = root) -> leaf IDs under it, ascending
	byPath   map[string]ID
}

// NewCategoryTree validates the categories and builds the tree.
// Categories may arrive in any order.
func NewCategoryTree(categories []*Category) (*CategoryTree, error) {
	t := &CategoryTree{
		nodes:    make(map[ID]*Category, len(categories)),
		children: make(map[ID][]*Category),
		leaves:   make(map[ID][]ID),
		byPath:   make(map[string]ID, len(categories)),
	}

	for _, c := range categories {
		if err := ValidateCategory(c); err != nil {
			return nil, err
		}
		if _, dup := t.nodes[c.Id]; dup {
			return nil, fmt.Errorf("%w: duplicate category id %d", ErrInvalidParent, c.Id)
		}
		t.nodes[c.Id] = c
	}

	for _, c := range categories {
		if c.Level == LevelMajor {
			if c.ParentId != 0 {
				return nil, fmt.Errorf("%w: major category %q has parent %d", ErrInvalidParent, c.Label, c.ParentId)
			}
		} else {
			parent, ok := t.nodes[c.ParentId]
			if !ok {
				return nil, fmt.Errorf("%w: category %q references missing parent %d", ErrInvalidParent, c.Label, c.ParentId)
			}
			if parent.Level != c.Level-1 {
				return nil, fmt.Errorf("%w: category %q (%s) under %q (%s)", ErrInvalidParent, c.Label, c.Level, parent.Label, parent.Level)
			}
		}
		t.children[c.ParentId] = append(t.children[c.ParentId], c)
	}

	for parent, kids := range t.children {
		slices.SortFunc(kids, compareCategories)
		for i := 1; i < len(kids); i++ {
			if kids[i].Label == kids[i-1].Label {
				return nil, fmt.Errorf("%w: duplicate label %q under parent %d", ErrInvalidParent, kids[i].Label, parent)
			}
		}
	}

	for _, c := range categories {
		t.byPath[strings.Join(t.Path(c.Id), pathSeparator)] = c.Id
		if c.Level != LevelMinor {
			continue
		}
		t.leaves[0] = append(t.leaves[0], c.Id)
		for id := c.ParentId; id != 0; id = t.nodes[id].ParentId {
			t.leaves[id] = append(t.leaves[id], c.Id)
		}
		t.leaves[c.Id] = []ID{c.Id}
	}
	for _, ids := range t.leaves {
		slices.Sort(ids)
	}

	return t, nil
}

func compareCategories(a, b *Category) int {
	if c := strings.Compare(a.Label, b.Label); c != 0 {
		return c
	}
	return cmp.Compare(a.Id, b.Id)
}

// Len returns the number of categories in the tree.
func (t *CategoryTree) Len() int {
	return len(t.nodes)
}

// Get returns the category with the given ID.
func (t *CategoryTree) Get(id ID) (*Category, bool) {
	c, ok := t.nodes[id]
	return c, ok
}

// IsLeaf reports whether id names a minor category.
func (t *CategoryTree) IsLeaf(id ID) bool {
	c, ok := t.nodes[id]
	return ok && c.Level == LevelMinor
}

// Majors returns the top-level categories ordered by label.
func (t *CategoryTree) Majors() []*Category {
	return slices.Clone(t.children[0])
}

// Children returns the direct children of id ordered by label.
func (t *CategoryTree) Children(id ID) []*Category {
	return slices.Clone(t.children[id])
}

// Leaves returns the IDs of all leaves under id in ascending order.
// Zero means the whole tree. Unknown IDs have no leaves.
func (t *CategoryTree) Leaves(id ID) []ID {
	return slices.Clone(t.leaves[id])
}

// Path returns the labels from the major category down to id.
func (t *CategoryTree) Path(id ID) []string {
	var path []string
	for c, ok := t.nodes[id]; ok; c, ok = t.nodes[c.ParentId] {
		path = append(path, c.Label)
	}
	slices.Reverse(path)
	return path
}

// Resolve finds the category at the given label path. An empty path resolves to the root (0).
func (t *CategoryTree) Resolve(path ...string) (ID, bool) {
	if len(path) == 0 {
		return 0, true
	}
	if len(path) > int(LevelMinor) {
		return 0, false
	}
	id, ok := t.byPath[strings.Join(path, pathSeparator)]
	return id, ok
}

// LeavesFor resolves a filter to its leaf set. A filter that names an unknown
// category or path resolves to an empty set.
func (t *CategoryTree) LeavesFor(f CategoryFilter) []ID {
	if f.CategoryId != 0 {
		return t.Leaves(f.CategoryId)
	}
	id, ok := t.Resolve(f.Path...)
	if !ok {
		return nil
	}
	return t.Leaves(id)
}

// All returns every category ordered by level, then label path.
func (t *CategoryTree) All() []*Category {
	out := make([]*Category, 0, len(t.nodes))
	out = append(out, t.children[0]...)
	for i := 0; i < len(out); i++ {
		out = append(out, t.children[out[i].Id]...)
	}
	return out
}
