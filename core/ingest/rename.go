package ingest

import (
	"regexp"
	"strings"
)

// braceRename matches the numstat rename shorthand in both spellings git and
// other producers emit: "src/{old => new}/f.go" and "src/{old=>new}/f.go".
var braceRename = regexp.MustCompile(`\{([^{}]*?)\s*=>\s*([^{}]*?)\}`)

// NormalizePath resolves git's rename notation to the file's current path.
// Both the brace form "src/{old => new}/f.go" and the bare form
// "old.go => new.go" are handled; moved reports whether either was present,
// and previous is the pre-rename path when it was.
// Only the first brace segment is substituted, which matches how often git
// emits more than one: effectively never.
func NormalizePath(path string) (normalized, previous string, moved bool) {
	if loc := braceRename.FindStringSubmatchIndex(path); loc != nil {
		splice := func(side string) string {
			out := path[:loc[0]] + side + path[loc[1]:]
			// An empty side leaves a double slash behind.
			return strings.ReplaceAll(out, "//", "/")
		}
		return splice(path[loc[4]:loc[5]]), splice(path[loc[2]:loc[3]]), true
	}
	if before, after, found := strings.Cut(path, " => "); found {
		return after, before, true
	}
	return path, "", false
}
