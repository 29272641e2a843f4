package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var transliterator = strings.NewReplacer(
	"ç", "c", "ğ", "g", "ı", "i", "ö", "o", "ş", "s", "ü", "u",
	"Ç", "c", "Ğ", "g", "İ", "i", "Ö", "o", "Ş", "s", "Ü", "u",
)

// Generate creates a URL-friendly slug, transliterating Turkish letters:
// "Kadın Giyim" becomes "kadin-giyim".
func Generate(name string) string {
	return join(name, "-")
}

// Key normalizes a free-form specification name into a field key:
// "Ekran Boyutu" becomes "ekran_boyutu".
func Key(name string) string {
	return join(name, "_")
}

func join(name, sep string) string {
	s := transliterator.Replace(strings.TrimSpace(name))
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, sep)
	return strings.Trim(s, sep)
}
