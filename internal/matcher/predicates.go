package matcher

import (
	"regexp"
	"time"

	"github.com/foldsort/foldsort/internal/facts"
	"github.com/foldsort/foldsort/internal/rules"
)

const dateLayout = "2006-01-02"

// matchSizeKB reports whether sizeBytes falls within r, treating an
// unset bound as unconstrained on that side.
func matchSizeKB(r *rules.SizeRange, sizeBytes int64) bool {
	kb := float64(sizeBytes) / 1024.0
	if r.Min != nil && kb < *r.Min {
		return false
	}
	if r.Max != nil && kb > *r.Max {
		return false
	}
	return true
}

// matchDateRange reports whether t's calendar date falls within r,
// inclusive on both ends. An unset From/To leaves that side open.
func matchDateRange(r *rules.DateRange, t time.Time) bool {
	if t.IsZero() {
		return false
	}
	day := t.Truncate(24 * time.Hour)

	if r.From != "" {
		from, err := time.Parse(dateLayout, r.From)
		if err == nil && day.Before(from) {
			return false
		}
	}
	if r.To != "" {
		to, err := time.Parse(dateLayout, r.To)
		if err == nil && day.After(to) {
			return false
		}
	}
	return true
}

// matchMetadata checks a single EXIF/metadata predicate against f's
// lazily-decoded Exif map. A key absent from the map never matches,
// regardless of HasValue. When a value is given, it matches either by
// exact equality or, failing that, as a regex against the field's
// string representation.
func matchMetadata(p rules.MetadataPredicate, f *facts.FileFacts) bool {
	if !f.HasExifCandidate() {
		return false
	}
	val, ok := f.Exif()[p.Key]
	if !ok {
		return false
	}
	if !p.HasValue {
		return true
	}
	if val == p.Value {
		return true
	}
	re, err := compiledMetadataRegex(p.Value)
	if err != nil {
		return false
	}
	return re.MatchString(val)
}

// compiledMetadataRegex compiles pattern once and caches it by pattern
// string, the same way compiledRegex does for filename conditions. A
// metadata value that isn't valid regex syntax simply never matches via
// the regex path — it already had its shot at exact equality above.
func compiledMetadataRegex(pattern string) (*regexp.Regexp, error) {
	if v, ok := regexCache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := regexCache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}
