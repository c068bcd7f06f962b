package identity_test

import (
	"errors"
	"testing"

	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
)

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"en", "en", false},
		{"en-GB", "en", false},
		{"ja", "ja", false},
		{"ko-KR", "ko", false},
		{" ru ", "ru", false},
		{"de-AT", "de", false},
		{"es-MX", "es", false},
		{"fr", "", true},
		{"tlh", "", true},
		{"und", "", true},
		{"zh-Hant", "", true},
		{"", "", true},
		{"not a tag!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := identity.NormalizeLanguage(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeLanguage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeLanguage(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSettingsPatch_Validation(t *testing.T) {
	empty := "  "
	badTheme := identity.Theme{Mode: "sepia"}

	tests := []struct {
		name  string
		patch identity.SettingsPatch
	}{
		{"empty name", identity.SettingsPatch{FullName: &empty}},
		{"bad mode", identity.SettingsPatch{Theme: &badTheme}},
		{"empty font", identity.SettingsPatch{Fonts: &empty}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.patch.Document(); !errors.Is(err, identity.ErrInvalidSetting) {
				t.Errorf("expected ErrInvalidSetting, got %v", err)
			}
		})
	}

	doc, err := identity.SettingsPatch{}.Document()
	if err != nil || len(doc) != 0 {
		t.Errorf("empty patch should produce no changes, got %v, %v", doc, err)
	}
}
