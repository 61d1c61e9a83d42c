// Package locale turns platform locale strings into 2-letter tags and
// renders the fixed set of translated user-facing messages.
package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const Default = "en"

var supported = map[string]language.Tag{
	"en": language.English,
	"es": language.Spanish,
	"ja": language.Japanese,
}

var messages = buildCatalog()

// Normalize reduces a locale such as "es-ES" or "ja" to its base language.
// Unparseable or empty input yields Default.
func Normalize(raw string) string {
	if raw == "" {
		return Default
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return Default
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return Default
	}
	return base.String()
}

// Sprintf renders an English message key in lang. Keys without a
// translation, and unsupported languages, render in English.
func Sprintf(lang, key string, args ...any) string {
	return printer(lang).Sprintf(key, args...)
}

func printer(lang string) *message.Printer {
	tag, ok := supported[Normalize(lang)]
	if !ok {
		tag = language.English
	}
	return message.NewPrinter(tag, message.Catalog(messages))
}

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, byLang := range translations {
		for lang, text := range byLang {
			if err := b.SetString(supported[lang], key, text); err != nil {
				panic(err)
			}
		}
	}
	return b
}
