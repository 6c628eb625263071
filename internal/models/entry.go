// Package models defines the entries and listings produced by the tree
// reader and consumed by the batch queue.
package models

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrNotFound reports that a file or directory does not exist. It is not
// fatal to a tree read or a batch operation by itself.
var ErrNotFound = errors.New("entry does not exist")

// Kind distinguishes files from directories.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "file":
		*k = KindFile
	case "directory", "dir":
		*k = KindDirectory
	default:
		return fmt.Errorf("unknown entry kind %q", string(b))
	}
	return nil
}

// ImportState is the server's import status of an image.
type ImportState int

const (
	ImportNone ImportState = iota
	ImportPending
	Imported
	ImportFailed
)

func (s ImportState) String() string {
	switch s {
	case ImportPending:
		return "pending"
	case Imported:
		return "imported"
	case ImportFailed:
		return "failed"
	default:
		return "none"
	}
}

// ConnectorType is the kind of storage a directory belongs to. Local
// listings use ConnectorLocal.
type ConnectorType string

const (
	ConnectorLocal           ConnectorType = "LOCAL"
	ConnectorStorage         ConnectorType = "STORAGE"
	ConnectorMultiResolution ConnectorType = "MULTIRESOLUTION"
	ConnectorStatic          ConnectorType = "STATIC"
	ConnectorCustom          ConnectorType = "CUSTOM"
	ConnectorUnknown         ConnectorType = "UNKNOWN"
)

// ParseConnectorType is case-insensitive; unknown names map to ConnectorUnknown.
func ParseConnectorType(s string) ConnectorType {
	switch ct := ConnectorType(strings.ToUpper(strings.TrimSpace(s))); ct {
	case ConnectorLocal, ConnectorStorage, ConnectorMultiResolution, ConnectorStatic, ConnectorCustom:
		return ct
	default:
		return ConnectorUnknown
	}
}

// Known reports whether t names an actual connector type.
func (t ConnectorType) Known() bool {
	return t != "" && t != ConnectorUnknown
}

// Entry is one file or directory found by a tree read.
type Entry struct {
	// Path is the parent directory, normalized and ending in "/".
	Path         string        `json:"path"`
	Name         string        `json:"name"`
	Size         int64         `json:"size"`
	LastModified time.Time     `json:"lastModified"`
	Kind         Kind          `json:"type"`
	ImportState  ImportState   `json:"importState,omitempty"`
	// ConnectorType is set on connector roots of a server listing.
	ConnectorType ConnectorType     `json:"connectorType,omitempty"`
	MetaData      map[string]string `json:"metaData,omitempty"`

	// Listing is the summary of the directory level the entry was read from.
	Listing *Summary `json:"-"`
}

// NewFile creates a file entry in dir.
func NewFile(dir, name string, size int64, modified time.Time) *Entry {
	return &Entry{Path: NormalizeDir(dir), Name: name, Size: size, LastModified: modified, Kind: KindFile}
}

// NewDirectory creates a directory entry in dir.
func NewDirectory(dir, name string, modified time.Time) *Entry {
	return &Entry{Path: NormalizeDir(dir), Name: name, LastModified: modified, Kind: KindDirectory}
}

// IsDir reports whether e is a directory.
func (e *Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// FullPath returns the entry's own path. Directories end in "/".
func (e *Entry) FullPath() string {
	if e.IsDir() {
		return e.Path + e.Name + "/"
	}
	return e.Path + e.Name
}

// Source returns the connector type of the listing the entry came from.
// Connector roots of the server root listing fall back to their own type.
func (e *Entry) Source() ConnectorType {
	if e.Listing != nil && e.Listing.ConnectorType.Known() {
		return e.Listing.ConnectorType
	}
	if e.ConnectorType.Known() {
		return e.ConnectorType
	}
	return ConnectorUnknown
}

// IsLocal reports whether the entry was read from the local filesystem.
func (e *Entry) IsLocal() bool {
	return e.Source() == ConnectorLocal
}

// NormalizeDir cleans p, converts separators to "/" and appends a trailing
// "/". The empty string stays empty and denotes the server root.
func NormalizeDir(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.TrimSpace(p) == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// RelativeTo returns the entry's full path below base, or false when the
// entry is not inside base.
func (e *Entry) RelativeTo(base string) (string, bool) {
	base = NormalizeDir(base)
	full := e.FullPath()
	if !strings.HasPrefix(full, base) {
		return "", false
	}
	return strings.TrimPrefix(full, base), true
}

// IsInside reports whether the entry lies below dir (dir itself excluded).
func (e *Entry) IsInside(dir *Entry) bool {
	if !dir.IsDir() || e == dir {
		return false
	}
	prefix := dir.FullPath()
	return strings.HasPrefix(e.FullPath(), prefix) && e.FullPath() != prefix
}
