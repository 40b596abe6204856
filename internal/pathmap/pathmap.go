// Package pathmap rewrites filesystem paths supplied by the caller into
// the paths this worker can actually see on its own mounts, e.g. rewriting
// a coordinator's `/media/tv/show.mkv` to this host's
// `/mnt/storage/tv/show.mkv`.
package pathmap

import "sort"

// Rule is a single (from, to) prefix rewrite.
type Rule struct {
	From string
	To   string
}

// Mapper rewrites paths using a fixed set of prefix rules, always matching
// the longest applicable "from" prefix first so that a more specific rule
// (e.g. "/media/tv") wins over a more general one (e.g. "/media") when both
// apply to the same path.
type Mapper struct {
	rules []Rule
}

// New builds a Mapper from the given rules, sorting them longest-from-first.
// Rules with an empty From are discarded.
func New(rules ...Rule) *Mapper {
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.From == "" {
			continue
		}
		kept = append(kept, r)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return len(kept[i].From) > len(kept[j].From)
	})
	return &Mapper{rules: kept}
}

// Rewrite applies the first matching rule to path, returning the rewritten
// path and true if a rule matched, or path unchanged and false otherwise.
// A rule matches when path equals From or has From as a path-segment prefix
// (From followed immediately by "/" or end of string).
func (m *Mapper) Rewrite(path string) (string, bool) {
	for _, r := range m.rules {
		if rewritten, ok := rewriteOne(path, r); ok {
			return rewritten, true
		}
	}
	return path, false
}

func rewriteOne(path string, r Rule) (string, bool) {
	if path == r.From {
		return r.To, true
	}
	if len(path) > len(r.From) && path[:len(r.From)] == r.From && path[len(r.From)] == '/' {
		return r.To + path[len(r.From):], true
	}
	return "", false
}
