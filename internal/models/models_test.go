package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeDir(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{".", ""},
		{"images", "images/"},
		{"images/", "images/"},
		{"images//foo/../bar", "images/bar/"},
		{`C:\data\img`, "C:/data/img/"},
		{"/", "/"},
		{"/home/user", "/home/user/"},
	}
	for _, tt := range tests {
		if got := NormalizeDir(tt.in); got != tt.want {
			t.Errorf("NormalizeDir(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEntryPaths(t *testing.T) {
	dir := NewDirectory("images", "sub", time.Time{})
	file := NewFile("images/sub", "a.jpg", 10, time.Time{})
	other := NewFile("images/subway", "b.jpg", 10, time.Time{})

	if got, want := dir.FullPath(), "images/sub/"; got != want {
		t.Errorf("dir.FullPath() = %q, want %q", got, want)
	}
	if got, want := file.FullPath(), "images/sub/a.jpg"; got != want {
		t.Errorf("file.FullPath() = %q, want %q", got, want)
	}
	if dir.Size != 0 {
		t.Errorf("directory Size = %d, want 0", dir.Size)
	}
	if !file.IsInside(dir) {
		t.Error("file.IsInside(dir) = false, want true")
	}
	if other.IsInside(dir) {
		t.Error("sibling with common prefix reported inside dir")
	}
	if dir.IsInside(dir) {
		t.Error("dir.IsInside(dir) = true, want false")
	}

	rel, ok := file.RelativeTo("images")
	if !ok || rel != "sub/a.jpg" {
		t.Errorf("RelativeTo(images) = %q, %v, want sub/a.jpg, true", rel, ok)
	}
	if _, ok := file.RelativeTo("videos"); ok {
		t.Error("RelativeTo(videos) ok = true, want false")
	}
}

func TestListingMerge(t *testing.T) {
	root := NewListing("images", ConnectorStorage)
	root.Add(NewDirectory("images", "a", time.Time{}), false)
	root.Add(&Entry{Path: "images/", Name: "x.jpg", Size: 5, ImportState: Imported}, false)

	child := NewListing("images/a", ConnectorStorage)
	child.Add(&Entry{Path: "images/a/", Name: "y.jpg", Size: 7, ImportState: ImportFailed}, false)
	child.Summary.SkippedDirectories = 2

	root.Merge(child, false)

	if got := root.Summary.EntryCount; got != (EntryCount{Directories: 1, Files: 2}) {
		t.Errorf("EntryCount = %+v, want 1 dir, 2 files", got)
	}
	want := ClientInfo{Bytes: 12, Imported: 1, ImportFailed: 1}
	if root.Summary.ClientInfo != want {
		t.Errorf("ClientInfo = %+v, want %+v", root.Summary.ClientInfo, want)
	}
	if root.Summary.SkippedDirectories != 2 {
		t.Errorf("SkippedDirectories = %d, want 2", root.Summary.SkippedDirectories)
	}
	if len(root.Entries) != 3 || root.Entries[2].Name != "y.jpg" {
		t.Errorf("Entries = %d, want child entry appended last", len(root.Entries))
	}
	if root.Entries[2].Listing != &child.Summary {
		t.Error("merged entry lost its back-reference")
	}

	dropped := NewListing("images", ConnectorStorage)
	dropped.Merge(child, true)
	if len(dropped.Entries) != 0 || dropped.Summary.EntryCount.Files != 1 {
		t.Errorf("dropEntries merge kept %d entries, counted %d files", len(dropped.Entries), dropped.Summary.EntryCount.Files)
	}
}

func TestEntrySource(t *testing.T) {
	l := NewListing("/tmp", ConnectorLocal)
	e := NewFile("/tmp", "a", 1, time.Time{})
	if got := e.Source(); got != ConnectorUnknown {
		t.Errorf("Source() without listing = %v, want %v", got, ConnectorUnknown)
	}
	l.Add(e, false)
	if !e.IsLocal() {
		t.Error("IsLocal() = false for entry of a local listing")
	}

	root := NewListing("", ConnectorUnknown)
	conn := NewDirectory("", "images", time.Time{})
	conn.ConnectorType = ConnectorStorage
	root.Add(conn, false)
	if got := conn.Source(); got != ConnectorStorage {
		t.Errorf("Source() of connector root = %v, want %v", got, ConnectorStorage)
	}
}

func TestTypeFilter(t *testing.T) {
	tests := []struct {
		in     string
		want   TypeFilter
		ok     bool
		file   bool
		folder bool
	}{
		{"all", TypeAll, true, true, true},
		{"files", TypeFiles, true, true, false},
		{"dirs", TypeDirectories, true, false, true},
		{"bogus", TypeAll, false, true, true},
	}
	for _, tt := range tests {
		got, ok := ParseTypeFilter(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseTypeFilter(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
		if got.Accept(KindFile) != tt.file || got.Accept(KindDirectory) != tt.folder {
			t.Errorf("%v.Accept mismatch", got)
		}
	}
}

func TestKindJSON(t *testing.T) {
	var e Entry
	if err := json.Unmarshal([]byte(`{"name":"d","type":"directory"}`), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !e.IsDir() {
		t.Errorf("Kind = %v, want directory", e.Kind)
	}
	if err := json.Unmarshal([]byte(`{"type":"link"}`), &e); err == nil {
		t.Error("Unmarshal of unknown kind succeeded, want error")
	}
}

func TestParseConnectorType(t *testing.T) {
	if got := ParseConnectorType(" multiresolution "); got != ConnectorMultiResolution {
		t.Errorf("ParseConnectorType = %v, want %v", got, ConnectorMultiResolution)
	}
	if got := ParseConnectorType("ftp"); got != ConnectorUnknown {
		t.Errorf("ParseConnectorType(ftp) = %v, want %v", got, ConnectorUnknown)
	}
}
