package identity

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

const (
	DefaultLanguage = "en"
	DefaultFont     = "montserrat"
)

// SupportedLanguages are the app's translated UI languages.
var SupportedLanguages = []language.Tag{
	language.English,
	language.Spanish,
	language.German,
	language.Japanese,
	language.Korean,
	language.Russian,
}

var languageMatcher = language.NewMatcher(SupportedLanguages)

// ErrInvalidSetting is wrapped by every settings validation failure.
var ErrInvalidSetting = errors.New("invalid setting")

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	FullName     *string `json:"fullName"`
	ProfileImage *string `json:"profileImage"`
	Theme        *Theme  `json:"theme"`
	Language     *string `json:"language"`
	Fonts        *string `json:"fonts"`

	// ResetAppearance restores the default theme and font; it wins over Theme and Fonts.
	ResetAppearance bool `json:"resetAppearance"`
}

// NormalizeLanguage parses a BCP 47 tag and returns the supported base
// language it names (e.g. "es-MX" -> "es").
func NormalizeLanguage(raw string) (string, error) {
	tag, err := language.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: language %q: %v", ErrInvalidSetting, raw, err)
	}
	// The matcher falls back to English for anything it cannot place, so
	// the requested base language must match the supported one exactly.
	requested, confidence := tag.Base()
	_, index, _ := languageMatcher.Match(tag)
	supported, _ := SupportedLanguages[index].Base()
	if confidence != language.Exact || requested != supported {
		return "", fmt.Errorf("%w: language %q is not supported", ErrInvalidSetting, raw)
	}
	return supported.String(), nil
}

// Document validates the patch and returns the fields to merge.
func (p SettingsPatch) Document() (store.Document, error) {
	changes := store.Document{}

	if p.FullName != nil {
		name := strings.TrimSpace(*p.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: fullName must not be empty", ErrInvalidSetting)
		}
		changes["fullName"] = name
	}
	if p.ProfileImage != nil {
		changes["profileImage"] = *p.ProfileImage
	}
	if p.Language != nil {
		lang, err := NormalizeLanguage(*p.Language)
		if err != nil {
			return nil, err
		}
		changes["language"] = lang
	}

	theme, fonts := p.Theme, p.Fonts
	if p.ResetAppearance {
		def := DefaultTheme()
		font := DefaultFont
		theme, fonts = &def, &font
	}
	if theme != nil {
		if theme.Mode != "light" && theme.Mode != "dark" {
			return nil, fmt.Errorf("%w: theme mode must be light or dark", ErrInvalidSetting)
		}
		changes["theme"] = map[string]any{
			"background": theme.Background,
			"text":       theme.Text,
			"icon":       theme.Icon,
			"mode":       theme.Mode,
		}
	}
	if fonts != nil {
		if strings.TrimSpace(*fonts) == "" {
			return nil, fmt.Errorf("%w: fonts must not be empty", ErrInvalidSetting)
		}
		changes["fonts"] = *fonts
	}
	return changes, nil
}
