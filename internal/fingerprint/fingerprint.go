// Package fingerprint derives stable cache keys from discovery queries.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// version is folded into every digest so a change to the normalization rules
// never collides with keys written by an older build.
const version = "v1"

// keep lists punctuation that changes meaning inside a token (c++, c#)
const keep = "+#"

// Normalize canonicalizes query text: NFKC, case folding, punctuation
// stripped to whitespace, whitespace collapsed and trimmed.
func Normalize(query string) string {
	// Casers carry state and are not safe to share between goroutines.
	s := cases.Fold().String(norm.NFKC.String(query))

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsMark(r), unicode.IsDigit(r), strings.ContainsRune(keep, r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// Compute returns the hex SHA-256 fingerprint of a query and its result
// limit. Queries that normalize identically collide; different limits never do.
func Compute(query string, maxResults int) string {
	h := sha256.New()
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(query)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(maxResults)))
	return hex.EncodeToString(h.Sum(nil))
}
