// Package mentions extracts community and user references from comment text.
//
// Extraction is a pure function over the input text: no I/O, no hidden state.
// The same text always yields the same matches.
package mentions

import (
	"regexp"
	"strings"
)

// Length windows Reddit enforces for the two namespaces.
const (
	minNameLen     = 3
	maxSubLen      = 21
	maxUserLen     = 20
	contextPad    = 50
	maxContextLen = 200
	userSubPrefix = "u_"
)

// Community references: /r/name, r/name, or the full URL form.
var reSub = regexp.MustCompile(`(?:/r/|\br/|https?://(?:www\.)?reddit\.com/r/)([A-Za-z0-9_]{3,21})\b`)

// Direct user references: /u/name or u/name.
var reUser = regexp.MustCompile(`(?:^|[\s(])/?u/([A-Za-z0-9_-]{3,20})\b`)

// Reserved pseudo-community names that are never real communities.
var reservedNames = map[string]struct{}{
	"all":    {},
	"random": {},
}

// Ref identifies one referenced entity. The two namespaces never collide:
// a community reference to a user-profile pseudo-community (u_name) is
// normalized into a user Ref at parse time.
type Ref struct {
	Name   string
	IsUser bool
}

// Match is one extracted reference with the evidence around it.
type Match struct {
	Ref
	Raw     string
	Context string
}

// Extractor applies the reference grammar with configured ignore-lists.
type Extractor struct {
	ignoreSubs  map[string]struct{}
	ignoreUsers map[string]struct{}
}

// NewExtractor builds an Extractor. Ignore-list entries are normalized the
// same way matched names are.
func NewExtractor(ignoreSubs, ignoreUsers []string) *Extractor {
	e := &Extractor{
		ignoreSubs:  make(map[string]struct{}, len(ignoreSubs)),
		ignoreUsers: make(map[string]struct{}, len(ignoreUsers)),
	}
	for _, s := range ignoreSubs {
		if n := Normalize(s); n != "" {
			e.ignoreSubs[n] = struct{}{}
		}
	}
	for _, u := range ignoreUsers {
		if n := Normalize(u); n != "" {
			e.ignoreUsers[n] = struct{}{}
		}
	}
	return e
}

// Normalize lowercases and trims a raw entity name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Extract returns every distinct reference in text, in order of first
// occurrence. Duplicate names keep only the first occurrence's context.
func (e *Extractor) Extract(text string) []Match {
	if text == "" {
		return nil
	}

	seen := make(map[Ref]struct{})
	var out []Match

	add := func(ref Ref, raw string, start, end int) {
		if _, dup := seen[ref]; dup {
			return
		}
		seen[ref] = struct{}{}
		out = append(out, Match{
			Ref:     ref,
			Raw:     raw,
			Context: snippet(text, start, end),
		})
	}

	type hit struct {
		ref        Ref
		raw        string
		start, end int
	}
	var hits []hit

	for _, idx := range reSub.FindAllStringSubmatchIndex(text, -1) {
		raw := text[idx[0]:idx[1]]
		name := Normalize(text[idx[2]:idx[3]])
		ref, ok := e.classifySub(name)
		if !ok {
			continue
		}
		hits = append(hits, hit{ref: ref, raw: raw, start: idx[0], end: idx[1]})
	}
	for _, idx := range reUser.FindAllStringSubmatchIndex(text, -1) {
		raw := strings.TrimSpace(text[idx[0]:idx[1]])
		name := Normalize(text[idx[2]:idx[3]])
		if !e.validUser(name) {
			continue
		}
		hits = append(hits, hit{ref: Ref{Name: name, IsUser: true}, raw: raw, start: idx[2], end: idx[3]})
	}

	// Restore document order across the two pattern families so "first
	// occurrence wins" holds for names matched by both.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].start < hits[j-1].start; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	for _, h := range hits {
		add(h.ref, h.raw, h.start, h.end)
	}
	return out
}

// classifySub validates a community name and folds user-profile
// pseudo-communities (u_name) into the user namespace.
func (e *Extractor) classifySub(name string) (Ref, bool) {
	if len(name) < minNameLen || len(name) > maxSubLen {
		return Ref{}, false
	}
	if _, reserved := reservedNames[name]; reserved {
		return Ref{}, false
	}
	if strings.HasPrefix(name, userSubPrefix) {
		user := strings.TrimPrefix(name, userSubPrefix)
		if !e.validUser(user) {
			return Ref{}, false
		}
		return Ref{Name: user, IsUser: true}, true
	}
	if _, ignored := e.ignoreSubs[name]; ignored {
		return Ref{}, false
	}
	return Ref{Name: name}, true
}

func (e *Extractor) validUser(name string) bool {
	if len(name) < minNameLen || len(name) > maxUserLen {
		return false
	}
	_, ignored := e.ignoreUsers[name]
	return !ignored
}

// snippet returns up to contextPad characters either side of the match,
// capped at maxContextLen.
func snippet(text string, start, end int) string {
	lo := start - contextPad
	if lo < 0 {
		lo = 0
	}
	hi := end + contextPad
	if hi > len(text) {
		hi = len(text)
	}
	s := text[lo:hi]
	if len(s) > maxContextLen {
		s = s[:maxContextLen]
	}
	return strings.ToValidUTF8(s, "")
}
