// Package textutil holds the pure string helpers shared by the engines:
// byte-size formatting, slugs, and purchase search queries.
package textutil

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count the way the upload list shows it,
// e.g. "0 Bytes", "500 Bytes", "1.5 KB", "2.25 MB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	const k = 1024
	i := 0
	scaled := float64(bytes)
	for scaled >= k && i < len(sizeUnits)-1 {
		scaled /= k
		i++
	}

	value := math.Round(scaled*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}

var (
	slugStrip      = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
)

// Slugify lower-cases s, folds accents, drops everything that is not
// [a-z0-9], whitespace or '-', and joins words with '-'.
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	out := slugStrip.ReplaceAllString(strings.ToLower(folded), "")
	out = strings.TrimSpace(out)
	return slugWhitespace.ReplaceAllString(out, "-")
}

// IsAbsent reports whether a free-text field carries no real value:
// empty, whitespace only, or the NotAvailable placeholder in any case.
func IsAbsent(s string) bool {
	trimmed := strings.TrimSpace(s)
	return trimmed == "" || strings.EqualFold(trimmed, model.NotAvailable)
}

// NormalizeDosage collapses internal whitespace runs to single spaces
func NormalizeDosage(dosage string) string {
	return strings.Join(strings.Fields(dosage), " ")
}

// SearchQuery builds the product-search query for a medication. It returns
// false when the name is absent, in which case no search must be made.
func SearchQuery(name, dosage string) (string, bool) {
	if IsAbsent(name) {
		return "", false
	}
	query := strings.TrimSpace(name)
	if !IsAbsent(dosage) {
		query += " " + NormalizeDosage(dosage)
	}
	return query, true
}

const upperHex = "0123456789ABCDEF"

// EncodeURIComponent escapes s the way browsers' encodeURIComponent does:
// every UTF-8 byte is percent-encoded except A-Z a-z 0-9 and - _ . ! ~ * ' ( ).
func EncodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if uriUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

func uriUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
