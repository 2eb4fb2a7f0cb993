package language

import (
	"strings"

	xlang "golang.org/x/text/language"
)

type entry struct {
	code2   string
	code3   []string
	display string
	word    string
}

var languages = []entry{
	{"en", []string{"eng"}, "English", "english"},
	{"es", []string{"spa"}, "Spanish", "spanish"},
	{"fr", []string{"fra", "fre"}, "French", "french"},
	{"de", []string{"deu", "ger"}, "German", "german"},
	{"it", []string{"ita"}, "Italian", "italian"},
	{"pt", []string{"por"}, "Portuguese", "portuguese"},
	{"ja", []string{"jpn"}, "Japanese", "japanese"},
	{"ko", []string{"kor"}, "Korean", "korean"},
	{"zh", []string{"zho", "chi"}, "Chinese", "chinese"},
	{"ru", []string{"rus"}, "Russian", "russian"},
	{"ar", []string{"ara"}, "Arabic", "arabic"},
	{"hi", []string{"hin"}, "Hindi", "hindi"},
	{"nl", []string{"nld", "dut"}, "Dutch", "dutch"},
	{"pl", []string{"pol"}, "Polish", "polish"},
	{"sv", []string{"swe"}, "Swedish", "swedish"},
	{"da", []string{"dan"}, "Danish", "danish"},
	{"no", []string{"nor"}, "Norwegian", "norwegian"},
	{"fi", []string{"fin"}, "Finnish", "finnish"},
	{"tr", []string{"tur"}, "Turkish", "turkish"},
	{"uk", []string{"ukr"}, "Ukrainian", "ukrainian"},
}

var index = func() map[string]*entry {
	m := make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		m[e.code2] = e
		m[e.word] = e
		for _, code := range e.code3 {
			m[code] = e
		}
	}
	return m
}()

// ToISO2 reduces a language code, BCP 47 tag, or English language name to
// ISO 639-1. Unknown two-letter codes pass through; anything else
// unrecognized returns "".
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e, ok := index[code]; ok {
		return e.code2
	}
	if strings.ContainsAny(code, "-_") {
		tag, err := xlang.Parse(strings.ReplaceAll(code, "_", "-"))
		if err == nil {
			base, confidence := tag.Base()
			if confidence != xlang.No {
				if e, ok := index[base.String()]; ok {
					return e.code2
				}
				if b := base.String(); len(b) == 2 {
					return b
				}
			}
		}
		code, _, _ = strings.Cut(strings.ReplaceAll(code, "_", "-"), "-")
	}
	if e, ok := index[code]; ok {
		return e.code2
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// Matches reports whether two codes name the same base language.
func Matches(a, b string) bool {
	a, b = ToISO2(a), ToISO2(b)
	return a != "" && a == b
}

// DisplayName returns a human-readable name, "Unknown" for empty input, or
// the upper-cased code when unrecognized.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if e, ok := index[ToISO2(code)]; ok {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeList converts codes to ISO 639-1 and drops blanks and
// duplicates while keeping order. Unrecognized entries are kept lower-cased.
func NormalizeList(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		normalized := ToISO2(code)
		if normalized == "" {
			normalized = strings.ToLower(strings.TrimSpace(code))
		}
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
