// Package matcher evaluates a rule's Conditions against a file's
// FileFacts. Filename and path patterns are compiled once per process
// and cached by pattern string, since the same rule is evaluated
// against every file a Sort run visits.
package matcher

import (
	"regexp"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/foldsort/foldsort/internal/facts"
	"github.com/foldsort/foldsort/internal/rules"
)

// regexCache and globCache are process-wide, write-once-per-pattern
// caches. A rules file rarely exceeds a few dozen rules, so the memory
// cost is negligible against the savings from not recompiling a
// filename regex for every file in a large tree. Invalid patterns are
// rejected at Validate time (internal/rules), so a lookup miss here
// always compiles successfully.
var (
	regexCache sync.Map // string -> *regexp.Regexp
	globCache  sync.Map // string -> glob.Glob
)

func compiledRegex(pattern string) *regexp.Regexp {
	if v, ok := regexCache.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	re := regexp.MustCompile(pattern)
	actual, _ := regexCache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp)
}

func compiledGlob(pattern string) glob.Glob {
	if v, ok := globCache.Load(pattern); ok {
		return v.(glob.Glob)
	}
	g := glob.MustCompile(pattern, '/')
	actual, _ := globCache.LoadOrStore(pattern, g)
	return actual.(glob.Glob)
}

// Matches reports whether f satisfies c. Every predicate field is
// optional; under the default AND combination an absent predicate is
// vacuously true, and under OR (c.Any) it is vacuously false. A
// Conditions value with no predicates set at all matches everything
// under AND, but nothing under OR — there's nothing for "any" to be
// true of.
func Matches(c rules.Conditions, ff *facts.FileFacts) bool {
	fns := activePredicates(c)

	if c.Any {
		for _, fn := range fns {
			if fn(ff) {
				return true
			}
		}
		return false
	}

	for _, fn := range fns {
		if !fn(ff) {
			return false
		}
	}
	return true
}

// activePredicates builds one closure per predicate field that is
// actually set on c, so Matches never evaluates a condition the rule
// author didn't specify.
func activePredicates(c rules.Conditions) []func(*facts.FileFacts) bool {
	var fns []func(*facts.FileFacts) bool

	if c.Filename != "" {
		pattern := c.Filename
		fns = append(fns, func(f *facts.FileFacts) bool {
			return compiledRegex(pattern).MatchString(f.Basename)
		})
	}

	if len(c.Extensions) > 0 {
		exts := c.Extensions
		fns = append(fns, func(f *facts.FileFacts) bool {
			return matchExtension(exts, f.Extension)
		})
	}

	if c.Path != "" {
		pattern := c.Path
		fns = append(fns, func(f *facts.FileFacts) bool {
			return compiledGlob(pattern).Match(f.Path)
		})
	}

	if c.SizeKB != nil {
		r := c.SizeKB
		fns = append(fns, func(f *facts.FileFacts) bool {
			return matchSizeKB(r, f.Size)
		})
	}

	if c.MimeType != "" {
		prefix := c.MimeType
		fns = append(fns, func(f *facts.FileFacts) bool {
			return matchMimeType(prefix, f.MimeType)
		})
	}

	if c.CreatedDate != nil {
		r := c.CreatedDate
		fns = append(fns, func(f *facts.FileFacts) bool {
			return matchDateRange(r, f.Created)
		})
	}

	if c.ModifiedDate != nil {
		r := c.ModifiedDate
		fns = append(fns, func(f *facts.FileFacts) bool {
			return matchDateRange(r, f.Modified)
		})
	}

	if c.IsSymlink != nil {
		want := *c.IsSymlink
		fns = append(fns, func(f *facts.FileFacts) bool {
			return f.IsSymlink == want
		})
	}

	for _, p := range c.Metadata {
		pred := p
		fns = append(fns, func(f *facts.FileFacts) bool {
			return matchMetadata(pred, f)
		})
	}

	return fns
}

// matchExtension reports whether ext (already lowercased by facts.Build)
// is present in the rule's extension list, case-insensitively and
// ignoring any leading dot the rule author included.
func matchExtension(exts []string, ext string) bool {
	for _, want := range exts {
		want = strings.ToLower(strings.TrimPrefix(want, "."))
		if want == ext {
			return true
		}
	}
	return false
}

// matchMimeType treats a rule's mime_type ending in "/*" as a prefix
// match against everything before the slash, so "image/*" matches every
// image subtype without the rule author having to enumerate them;
// anything else is an exact equality check.
func matchMimeType(pattern, actual string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(actual, prefix)
	}
	return actual == pattern
}
