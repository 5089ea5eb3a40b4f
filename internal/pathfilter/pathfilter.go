// Package pathfilter implements the pure include/exclude predicate that
// decides which filesystem paths are reload-triggering and which
// directories the watcher should recurse into. It holds no state and
// performs no I/O; every decision is a function of a path string and the
// loaded Config.
package pathfilter

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/zenodev/zeno/internal/config"
)

// Filter evaluates paths against a Config's include/exclude rules.
type Filter struct {
	cfg     *config.Config
	regexes []*regexp.Regexp
}

// New compiles a Filter for cfg. exclude_regex entries that fail to
// compile are dropped; the caller is responsible for surfacing that via
// logging if desired (New itself never fails — a malformed regex should
// not prevent the supervisor from starting).
func New(cfg *config.Config) *Filter {
	f := &Filter{cfg: cfg}
	for _, pattern := range cfg.Build.ExcludeRegex {
		if re, err := regexp.Compile(pattern); err == nil {
			f.regexes = append(f.regexes, re)
		}
	}
	return f
}

// ShouldWatch reports whether a change to absPath should trigger a
// reload, per spec.md §4.1's file rules, evaluated in order with the
// first negative deciding.
func (f *Filter) ShouldWatch(absPath string) bool {
	rel := f.relative(absPath)
	base := filepath.Base(absPath)
	ext := strings.TrimPrefix(filepath.Ext(absPath), ".")

	if len(f.cfg.Build.IncludeExt) > 0 && !contains(f.cfg.Build.IncludeExt, ext) {
		return false
	}
	if contains(f.cfg.Build.ExcludeFile, base) {
		return false
	}
	if len(f.cfg.Build.IncludeFile) > 0 && !contains(f.cfg.Build.IncludeFile, base) {
		return false
	}
	for _, re := range f.regexes {
		if re.MatchString(rel) {
			return false
		}
	}
	return true
}

// IsExcludedDir reports whether the watcher should prune recursion into
// absDirPath, per spec.md §4.1's directory rules, evaluated in order.
func (f *Filter) IsExcludedDir(absDirPath string) bool {
	rel := f.relative(absDirPath)

	if rel == f.cfg.TmpDir {
		return true
	}
	for _, prefix := range f.cfg.Build.ExcludeDir {
		if hasPathPrefix(rel, prefix) {
			return true
		}
	}
	if len(f.cfg.Build.IncludeDir) > 0 {
		included := false
		for _, prefix := range f.cfg.Build.IncludeDir {
			if hasPathPrefix(rel, prefix) {
				included = true
				break
			}
		}
		if !included {
			return true
		}
	}
	return false
}

func (f *Filter) relative(absPath string) string {
	rel, err := filepath.Rel(f.cfg.Root, absPath)
	if err != nil {
		return absPath
	}
	return rel
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

// hasPathPrefix reports whether rel starts with prefix as a path
// component, not merely as a string — "src" must not match "srcfoo".
func hasPathPrefix(rel, prefix string) bool {
	prefix = filepath.Clean(prefix)
	rel = filepath.Clean(rel)
	if rel == prefix {
		return true
	}
	return strings.HasPrefix(rel, prefix+string(filepath.Separator))
}
