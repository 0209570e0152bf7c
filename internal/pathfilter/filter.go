// Package pathfilter decides which changed file paths the scanner records.
// Filters are allow/deny pattern lists scoped to directories and extensions,
// configured per organization with optional per-repository overrides.
package pathfilter

import (
	"path/filepath"
	"strings"

	"github.com/repoflux/repoflux/schema"
)

// Filter holds the resolved pattern lists for one repository. A nil list
// means "not configured": an absent allow-list allows everything not denied.
type Filter struct {
	dirAllow []string
	dirDeny  []string
	extAllow []string
	extDeny  []string
}

// Resolve builds the effective filter for a repository. A repository list
// that is set overrides (never merges with) the organization list of the
// same kind; an unset repository list falls back to the organization's.
func Resolve(org *schema.Organization, repo *schema.Repository) *Filter {
	return &Filter{
		dirAllow: pickList(repo.DirectoryAllowList, org.DirectoryAllowList),
		dirDeny:  pickList(repo.DirectoryDenyList, org.DirectoryDenyList),
		extAllow: pickList(repo.ExtensionAllowList, org.ExtensionAllowList),
		extDeny:  pickList(repo.ExtensionDenyList, org.ExtensionDenyList),
	}
}

// pickList parses the repository list when set, else the organization list.
// Lists are newline separated; blank lines are dropped.
func pickList(repoList, orgList string) []string {
	raw := repoList
	if strings.TrimSpace(raw) == "" {
		raw = orgList
	}
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var patterns []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		patterns = append(patterns, strings.TrimSuffix(line, "/"))
	}
	return patterns
}

// ShouldProcess reports whether a changed path passes the configured lists.
// Directory lists are checked first, then extension lists when the path has
// an extension. A path failing any configured allow-list, or matching any
// deny-list, is rejected.
func (f *Filter) ShouldProcess(path string) bool {
	path = strings.TrimSuffix(path, "/")
	dir := filepath.Dir(path)

	if f.dirAllow != nil && !matchAny(f.dirAllow, dir, matchDir) {
		return false
	}
	if matchAny(f.dirDeny, dir, matchDir) {
		return false
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return true
	}
	if f.extAllow != nil && !matchAny(f.extAllow, ext, matchExt) {
		return false
	}
	if matchAny(f.extDeny, ext, matchExt) {
		return false
	}
	return true
}

func matchAny(patterns []string, value string, match func(pattern, value string) bool) bool {
	for _, p := range patterns {
		if match(p, value) {
			return true
		}
	}
	return false
}

// matchDir matches a directory against one pattern: shell-glob semantics
// when the pattern carries metacharacters, prefix match otherwise.
func matchDir(pattern, dir string) bool {
	if isGlob(pattern) {
		ok, err := filepath.Match(pattern, dir)
		return err == nil && ok
	}
	return strings.HasPrefix(dir, pattern)
}

// matchExt matches a dot-stripped extension: glob or exact.
func matchExt(pattern, ext string) bool {
	pattern = strings.TrimPrefix(pattern, ".")
	if isGlob(pattern) {
		ok, err := filepath.Match(pattern, ext)
		return err == nil && ok
	}
	return pattern == ext
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}
