package api

import (
	"strings"
	"testing"

	"github.com/ppiankov/vulnrecon/internal/models"
)

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "valid", id: "3f2504e0-4f89-41d3-9a0c-0305e82c3301", wantErr: false},
		{name: "empty", id: "", wantErr: true},
		{name: "not a uuid", id: "abc", wantErr: true},
		{name: "path traversal", id: "../../etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.id)
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateNames(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		wantErr bool
	}{
		{name: "valid", names: []string{"SQLi", "Weak Cipher A"}, wantErr: false},
		{name: "empty list", names: nil, wantErr: false},
		{name: "blank name", names: []string{"ok", "  "}, wantErr: true},
		{name: "too long", names: []string{strings.Repeat("a", MaxNameLength+1)}, wantErr: true},
		{name: "too many", names: make([]string, MaxNamesPerRequest+1), wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNames(tt.names)
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateNamesReportsIndex(t *testing.T) {
	err := ValidateNames([]string{"ok", ""})
	if err == nil || !strings.Contains(err.Error(), "names[1]") {
		t.Fatalf("expected error naming index 1, got %v", err)
	}
}

func TestValidateDetails(t *testing.T) {
	if err := ValidateDetails(models.Details{Name: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ValidateDetails(models.Details{Impact: strings.Repeat("i", MaxDetailFieldLength+1)})
	if err == nil || !strings.Contains(err.Error(), "impact") {
		t.Fatalf("expected impact error, got %v", err)
	}
}
