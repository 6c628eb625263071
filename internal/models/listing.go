package models

import "strings"

// EntryCount counts the entries of a listing by kind.
type EntryCount struct {
	Directories int `json:"directories"`
	Files       int `json:"files"`
}

// Total returns the number of all entries.
func (c EntryCount) Total() int {
	return c.Directories + c.Files
}

// ClientInfo accumulates per-entry statistics while a tree is read.
type ClientInfo struct {
	Bytes         int64 `json:"bytes"`
	Imported      int   `json:"imported"`
	ImportPending int   `json:"importPending"`
	ImportFailed  int   `json:"importFailed"`
}

// Add adds o to c.
func (c *ClientInfo) Add(o ClientInfo) {
	c.Bytes += o.Bytes
	c.Imported += o.Imported
	c.ImportPending += o.ImportPending
	c.ImportFailed += o.ImportFailed
}

// AddEntry folds one entry into c.
func (c *ClientInfo) AddEntry(e *Entry) {
	if !e.IsDir() {
		c.Bytes += e.Size
	}
	switch e.ImportState {
	case Imported:
		c.Imported++
	case ImportPending:
		c.ImportPending++
	case ImportFailed:
		c.ImportFailed++
	}
}

// Summary describes one listing.
type Summary struct {
	Dir           string        `json:"dir"`
	ConnectorType ConnectorType `json:"connectorType"`
	EntryCount    EntryCount    `json:"entryCount"`
	ClientInfo    ClientInfo    `json:"clientInfo"`
	// SkippedDirectories counts directories not descended because of the
	// depth limit.
	SkippedDirectories int `json:"skippedDirectories,omitempty"`
}

// Listing is a directory summary plus its entries in read order.
type Listing struct {
	Summary Summary  `json:"summary"`
	Entries []*Entry `json:"entries"`
}

// NewListing creates an empty listing of dir.
func NewListing(dir string, ct ConnectorType) *Listing {
	return &Listing{Summary: Summary{Dir: NormalizeDir(dir), ConnectorType: ct}}
}

// Add counts e and, unless drop is set, appends it.
func (l *Listing) Add(e *Entry, drop bool) {
	if e.Listing == nil {
		e.Listing = &l.Summary
	}
	if e.IsDir() {
		l.Summary.EntryCount.Directories++
	} else {
		l.Summary.EntryCount.Files++
	}
	l.Summary.ClientInfo.AddEntry(e)
	if !drop {
		l.Entries = append(l.Entries, e)
	}
}

// Merge folds a child listing into l. Entries are appended unless dropEntries
// is set.
func (l *Listing) Merge(child *Listing, dropEntries bool) {
	if child == nil {
		return
	}
	l.Summary.EntryCount.Directories += child.Summary.EntryCount.Directories
	l.Summary.EntryCount.Files += child.Summary.EntryCount.Files
	l.Summary.ClientInfo.Add(child.Summary.ClientInfo)
	l.Summary.SkippedDirectories += child.Summary.SkippedDirectories
	if !dropEntries {
		l.Entries = append(l.Entries, child.Entries...)
	}
}

// TypeFilter selects which entry kinds a listing keeps.
type TypeFilter int

const (
	TypeAll TypeFilter = iota
	TypeFiles
	TypeDirectories
)

// Accept reports whether an entry of kind k passes the filter.
func (f TypeFilter) Accept(k Kind) bool {
	switch f {
	case TypeFiles:
		return k == KindFile
	case TypeDirectories:
		return k == KindDirectory
	default:
		return true
	}
}

func (f TypeFilter) String() string {
	switch f {
	case TypeFiles:
		return "files"
	case TypeDirectories:
		return "directories"
	default:
		return "all"
	}
}

// ParseTypeFilter accepts all, file(s) and dir(s)/directory/directories.
func ParseTypeFilter(s string) (TypeFilter, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return TypeAll, true
	case "file", "files":
		return TypeFiles, true
	case "dir", "dirs", "directory", "directories":
		return TypeDirectories, true
	default:
		return TypeAll, false
	}
}
