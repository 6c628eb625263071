package diskspace

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckAvailableSpace(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "not", "yet", "created.jpg")

	if err := CheckAvailableSpace(target, 1024, 1.05); err != nil {
		t.Errorf("CheckAvailableSpace(1KB) = %v, want nil", err)
	}
	if err := CheckAvailableSpace(target, 0, 1.05); err != nil {
		t.Errorf("CheckAvailableSpace(0) = %v, want nil", err)
	}

	// 100 PB exceeds any test machine.
	err := CheckAvailableSpace(target, 100<<50, 1.05)
	if !IsInsufficientSpaceError(err) {
		t.Errorf("CheckAvailableSpace(100PB) = %v, want InsufficientSpaceError", err)
	}
}

func TestGetAvailableSpace(t *testing.T) {
	if got := GetAvailableSpace(filepath.Join(t.TempDir(), "x")); got <= 0 {
		t.Errorf("GetAvailableSpace() = %d, want > 0", got)
	}
}

func TestIsInsufficientSpaceError(t *testing.T) {
	base := &InsufficientSpaceError{Path: "/tmp/a.jpg", RequiredBytes: 100 << 20, AvailableBytes: 50 << 20}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct", base, true},
		{"wrapped", fmt.Errorf("download: %w", base), true},
		{"other", fmt.Errorf("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := IsInsufficientSpaceError(tt.err); got != tt.want {
			t.Errorf("%s: IsInsufficientSpaceError() = %v, want %v", tt.name, got, tt.want)
		}
	}

	msg := base.Error()
	for _, want := range []string{"/tmp/a.jpg", "100.00", "50.00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}
