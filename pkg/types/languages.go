package types

import "strings"

// DefaultLanguage is the initial input and output language for a participant
// who has not configured one.
const DefaultLanguage = "English"

// DefaultVoiceSlot is the initial synthesis voice slot for a participant.
const DefaultVoiceSlot = 1

// Language pairs an ISO 639-1 code with its English name. Names are what
// participants see and configure; codes are what providers speak.
type Language struct {
	Code string
	Name string
}

// languages lists every language selectable in participant configuration,
// English first.
var languages = []Language{
	{"en", "English"},
	{"es", "Spanish"},
	{"fr", "French"},
	{"de", "German"},
	{"it", "Italian"},
	{"pt", "Portuguese"},
	{"ru", "Russian"},
	{"ja", "Japanese"},
	{"zh", "Chinese"},
	{"ko", "Korean"},
	{"ar", "Arabic"},
	{"hi", "Hindi"},
	{"nl", "Dutch"},
	{"sv", "Swedish"},
	{"el", "Greek"},
	{"tr", "Turkish"},
}

// iso3Aliases maps the three-letter codes some transcription providers report
// to the two-letter codes used everywhere else. Both ISO 639-2 variants are
// listed where they differ.
var iso3Aliases = map[string]string{
	"eng": "en", "spa": "es", "fra": "fr", "fre": "fr",
	"deu": "de", "ger": "de", "ita": "it", "por": "pt",
	"rus": "ru", "jpn": "ja", "zho": "zh", "chi": "zh",
	"kor": "ko", "ara": "ar", "hin": "hi", "nld": "nl",
	"dut": "nl", "swe": "sv", "ell": "el", "gre": "el",
	"tur": "tr",
}

// Languages returns the supported language list in display order.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// LanguageByName looks a language up by its English name, case-insensitively.
func LanguageByName(name string) (Language, bool) {
	name = strings.TrimSpace(name)
	for _, l := range languages {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return Language{}, false
}

// LanguageByCode looks a language up by ISO code. Three-letter codes and
// region subtags ("en-US") are normalized to their two-letter base.
func LanguageByCode(code string) (Language, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if base, _, found := strings.Cut(code, "-"); found {
		code = base
	}
	if two, ok := iso3Aliases[code]; ok {
		code = two
	}
	for _, l := range languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// LanguageName returns the English name for an ISO code, or the code itself
// when it is not in the supported table. Passing a name through unchanged
// keeps unknown provider-reported languages readable in transcripts.
func LanguageName(code string) string {
	if l, ok := LanguageByCode(code); ok {
		return l.Name
	}
	return code
}
