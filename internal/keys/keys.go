// Package keys derives storage keys for uploaded files.
package keys

import (
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// maxNameLength caps the sanitized filename portion of a key.
const maxNameLength = 128

// Generator produces keys of the form <timestamp>-<sanitized filename>.
// The timestamp is in Unix milliseconds and never repeats for a given
// Generator: when the clock has not advanced since the previous key, the
// previous timestamp plus one is used instead.
//
// A Generator is safe for concurrent use. The zero value uses time.Now.
type Generator struct {
	// Now returns the ingestion time. Defaults to time.Now.
	Now func() time.Time

	last atomic.Int64
}

// NewGenerator returns a Generator reading time from now. A nil now means
// time.Now.
func NewGenerator(now func() time.Time) *Generator {
	return &Generator{Now: now}
}

// Key returns a new storage key for filename along with the timestamp
// embedded in it.
func (g *Generator) Key(filename string) (string, time.Time) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	ingested := now()
	stamp := g.next(ingested.UnixMilli())
	return strconv.FormatInt(stamp, 10) + "-" + Sanitize(filename), time.UnixMilli(stamp).UTC()
}

func (g *Generator) next(candidate int64) int64 {
	for {
		last := g.last.Load()
		stamp := candidate
		if stamp <= last {
			stamp = last + 1
		}
		if g.last.CompareAndSwap(last, stamp) {
			return stamp
		}
	}
}

// Sanitize reduces an untrusted filename to a safe single path segment.
// Directory components are dropped, ".." sequences removed, and anything
// outside [A-Za-z0-9._-] replaced by an underscore. The result is never
// empty.
func Sanitize(filename string) string {
	name := strings.ReplaceAll(filename, "\\", "/")
	name = path.Base(name)
	name = strings.ReplaceAll(name, "..", "")

	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	clean := strings.TrimLeft(b.String(), "._")
	clean = strings.TrimRight(clean, "_")
	if clean == "" {
		return "file"
	}

	if len(clean) > maxNameLength {
		ext := path.Ext(clean)
		if len(ext) >= maxNameLength/2 {
			ext = ""
		}
		clean = clean[:maxNameLength-len(ext)] + ext
	}

	return clean
}
