package queue

import (
	"strings"

	"github.com/neptunelabs/fsi-client/internal/models"
)

type batchItem struct {
	entry *models.Entry
	// base is the directory the entry was collected below; transfers keep
	// the entry's path relative to it.
	base string
}

// Group is the part of a batch that came from one connector type.
type Group struct {
	Type    models.ConnectorType
	Entries []*models.Entry
}

// BatchContent is the working set of the batch operations. It survives
// runs until it is cleared.
type BatchContent struct {
	items []batchItem
}

// Add appends entries collected below base.
func (b *BatchContent) Add(base string, entries ...*models.Entry) {
	base = models.NormalizeDir(base)
	for _, e := range entries {
		b.items = append(b.items, batchItem{entry: e, base: base})
	}
}

// AddListing appends the entries of l below its directory.
func (b *BatchContent) AddListing(l *models.Listing) {
	b.Add(l.Summary.Dir, l.Entries...)
}

// Clear empties the batch.
func (b *BatchContent) Clear() {
	b.items = nil
}

// Len returns the number of entries.
func (b *BatchContent) Len() int {
	return len(b.items)
}

// Entries returns the entries in collection order.
func (b *BatchContent) Entries() []*models.Entry {
	out := make([]*models.Entry, len(b.items))
	for i, it := range b.items {
		out[i] = it.entry
	}
	return out
}

// Groups returns the entries grouped by source connector type, groups in
// order of first appearance.
func (b *BatchContent) Groups() []Group {
	var groups []Group
	index := map[models.ConnectorType]int{}
	for _, it := range b.items {
		ct := it.entry.Source()
		i, ok := index[ct]
		if !ok {
			i = len(groups)
			index[ct] = i
			groups = append(groups, Group{Type: ct})
		}
		groups[i].Entries = append(groups[i].Entries, it.entry)
	}
	return groups
}

// Summary returns aggregated counters over the batch.
func (b *BatchContent) Summary() models.Summary {
	var s models.Summary
	for _, it := range b.items {
		if it.entry.IsDir() {
			s.EntryCount.Directories++
		} else {
			s.EntryCount.Files++
		}
		s.ClientInfo.AddEntry(it.entry)
	}
	return s
}

// AllLocal reports whether every entry comes from the local filesystem.
func (b *BatchContent) AllLocal() bool {
	for _, it := range b.items {
		if !it.entry.IsLocal() {
			return false
		}
	}
	return true
}

// AllRemote reports whether no entry comes from the local filesystem.
func (b *BatchContent) AllRemote() bool {
	for _, it := range b.items {
		if it.entry.IsLocal() {
			return false
		}
	}
	return true
}

// snapshot returns the items in collection order, or reversed.
func (b *BatchContent) snapshot(reverse bool) []batchItem {
	out := make([]batchItem, len(b.items))
	copy(out, b.items)
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// relative returns the entry's path below its base, slash separated and
// without a trailing slash.
func (it batchItem) relative() string {
	rel, ok := it.entry.RelativeTo(it.base)
	if !ok {
		rel = it.entry.Name
	}
	return strings.TrimSuffix(rel, "/")
}

// coveredBy returns the directory in dirs that contains e, if any.
func coveredBy(e *models.Entry, dirs map[string]bool) string {
	p := e.Path
	for p != "" {
		if dirs[p] {
			return p
		}
		trimmed := strings.TrimSuffix(p, "/")
		i := strings.LastIndex(trimmed, "/")
		if i < 0 {
			break
		}
		p = trimmed[:i+1]
	}
	return ""
}
