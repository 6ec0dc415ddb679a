package ticket

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	Prefix          = "MNT"
	defaultCategory = "GEN"
	suffixLen       = 3
	base36          = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewID builds a public ticket id: MNT-{CAT4}-{base36 unix ms}{3 random base36}.
// Uniqueness is probabilistic; the store enforces it with a unique index.
func NewID(category string, now time.Time) string {
	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteByte('-')
	b.WriteString(CategoryCode(category))
	b.WriteByte('-')
	b.WriteString(strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)))
	for range suffixLen {
		b.WriteByte(base36[rand.IntN(len(base36))])
	}
	return b.String()
}

func CategoryCode(category string) string {
	c := strings.TrimSpace(category)
	if c == "" {
		return defaultCategory
	}
	if r := []rune(c); len(r) > 4 {
		c = string(r[:4])
	}
	return strings.ToUpper(c)
}

var escaper = strings.NewReplacer(
	"<", "",
	">", "",
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// Sanitize trims s, drops angle brackets and escapes & " '.
func Sanitize(s string) string {
	return escaper.Replace(strings.TrimSpace(s))
}
