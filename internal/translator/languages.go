package translator

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const DefaultTargetLang = "ko"

// Languages are the target languages offered in settings, named in their
// own language.
var Languages = map[string]string{
	"ko": "한국어",
	"en": "English",
	"ja": "日本語",
	"zh": "中文",
	"es": "Español",
	"fr": "Français",
	"de": "Deutsch",
}

// LanguageName returns the name used to instruct backends. Codes outside
// Languages are named by x/text; codes that do not parse are a
// configuration error.
func LanguageName(code string) (string, error) {
	if name, ok := Languages[code]; ok {
		return name, nil
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("%w: invalid target language %q", ErrConfigurationMissing, code)
	}
	if name := display.Self.Name(tag); name != "" {
		return name, nil
	}
	return code, nil
}

// LanguageCodes returns the codes of Languages in sorted order.
func LanguageCodes() []string {
	codes := make([]string, 0, len(Languages))
	for code := range Languages {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
