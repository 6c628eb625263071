package messages

import (
	"testing"

	"golang.org/x/text/language"
)

func TestCatalogText(t *testing.T) {
	tests := []struct {
		name string
		lang string
		key  string
		args []any
		want string
	}{
		{"english template", "", TaskDownload, []any{"images/a.jpg"}, "Downloading images/a.jpg"},
		{"positional args", "en", TaskServiceCommand, []any{"images/", "flush"}, "Sending service command flush to images/"},
		{"german template", "de-DE", ErrAborted, nil, "Vom Benutzer abgebrochen"},
		{"german falls back to english", "de", LogBatchGroup, []any{"STORAGE", 3}, "  STORAGE: 3 entries"},
		{"unknown key verbatim", "", "custom.key", nil, "custom.key"},
		{"unknown key with args", "", "custom.key", []any{"a", 1}, "custom.key a 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.lang).Text(tt.key, tt.args...)
			if got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestCatalogLanguage(t *testing.T) {
	tests := []struct {
		lang string
		want language.Tag
	}{
		{"", language.English},
		{"de-AT", language.German},
		{"fr", language.English},
		{"not a tag", language.English},
	}
	for _, tt := range tests {
		if got := New(tt.lang).Language(); got != tt.want {
			t.Errorf("New(%q).Language() = %v, want %v", tt.lang, got, tt.want)
		}
	}
}
