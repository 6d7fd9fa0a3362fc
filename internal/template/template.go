// Package template implements the placeholder expansion engine used for
// rename targets and move/copy destinations. Placeholders use
// `{{ name }}` or `{{ name | filter:arg }}` syntax; the placeholder
// regex is compiled exactly once per process.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Variables is the file-derived data a template expands against. It is a
// narrow view over facts.FileFacts — defined here rather than imported
// to keep this package free of a dependency on the facts package (facts
// has no need to know about templates, and rules imports this package
// purely for Validate).
type Variables struct {
	Filename string
	Name     string
	Ext      string
	Size     int64

	ExifDate     time.Time // zero if no EXIF date present
	CreatedTime  time.Time
	ModifiedTime time.Time

	Metadata map[string]string
}

// placeholderRe is compiled exactly once per process — a package-level
// var initializer runs a single time regardless of how many goroutines
// call Expand/Validate concurrently.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*(?:\|\s*([a-zA-Z]+)(?::([^}]+))?)?\s*\}\}`)

// Error reports a malformed placeholder or unknown filter.
type Error struct {
	Template string
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
}

var knownVariablePrefixes = []string{
	"filename", "name", "extension", "ext", "size",
	"year", "month", "day",
	"created_year", "created_month", "created_day",
	"modified_year", "modified_month", "modified_day",
	"metadata.",
}

var knownFilters = map[string]bool{"date": true, "lower": true, "upper": true}

// Validate checks that tpl's braces balance and every placeholder names a
// known variable and (if present) a known filter, without requiring
// FileFacts. It does not reject unknown *variable* names that use the
// metadata.<KEY> family, since KEY is open-ended.
func Validate(tpl string) error {
	if strings.Count(tpl, "{{") != strings.Count(tpl, "}}") {
		return &Error{Template: tpl, Reason: "unbalanced {{ }}"}
	}

	for _, m := range placeholderRe.FindAllStringSubmatch(tpl, -1) {
		name, filter := m[1], m[2]
		if !isKnownVariable(name) {
			return &Error{Template: tpl, Reason: fmt.Sprintf("unknown placeholder %q", name)}
		}
		if filter != "" && !knownFilters[filter] {
			return &Error{Template: tpl, Reason: fmt.Sprintf("unknown filter %q", filter)}
		}
	}
	return nil
}

func isKnownVariable(name string) bool {
	if strings.HasPrefix(name, "metadata.") {
		return len(name) > len("metadata.")
	}
	for _, v := range knownVariablePrefixes {
		if v == name {
			return true
		}
	}
	return false
}

// Expand performs a single pass over tpl, substituting each placeholder
// with its value from vars. Unknown placeholders expand to the
// empty string; unknown filters are a TemplateError raised during
// expansion (not just validation), since a filter argument can only be
// checked once the variable's value is in hand.
func Expand(tpl string, vars Variables) (string, error) {
	var expandErr error
	result := placeholderRe.ReplaceAllStringFunc(tpl, func(match string) string {
		if expandErr != nil {
			return ""
		}
		groups := placeholderRe.FindStringSubmatch(match)
		name, filter, arg := groups[1], groups[2], groups[3]

		val := lookupVariable(name, vars)

		if filter == "" {
			return val
		}
		out, err := applyFilter(filter, arg, name, val, vars)
		if err != nil {
			expandErr = &Error{Template: tpl, Reason: err.Error()}
			return ""
		}
		return out
	})
	if expandErr != nil {
		return "", expandErr
	}
	return result, nil
}

func lookupVariable(name string, vars Variables) string {
	switch name {
	case "filename":
		return vars.Filename
	case "name":
		return vars.Name
	case "extension", "ext":
		return vars.Ext
	case "size":
		return strconv.FormatInt(vars.Size, 10)
	case "year", "month", "day":
		t := vars.ExifDate
		if t.IsZero() {
			t = vars.ModifiedTime
		}
		return datePart(name, t)
	case "created_year", "created_month", "created_day":
		return datePart(strings.TrimPrefix(name, "created_"), vars.CreatedTime)
	case "modified_year", "modified_month", "modified_day":
		return datePart(strings.TrimPrefix(name, "modified_"), vars.ModifiedTime)
	default:
		if strings.HasPrefix(name, "metadata.") {
			key := strings.TrimPrefix(name, "metadata.")
			return vars.Metadata[key]
		}
		return ""
	}
}

func datePart(part string, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	switch part {
	case "year":
		return fmt.Sprintf("%04d", t.Year())
	case "month":
		return fmt.Sprintf("%02d", t.Month())
	case "day":
		return fmt.Sprintf("%02d", t.Day())
	default:
		return ""
	}
}

// applyFilter reformats a date-bearing variable or case-transforms any
// variable's string value.
func applyFilter(filter, arg, varName, val string, vars Variables) (string, error) {
	switch filter {
	case "lower":
		return strings.ToLower(val), nil
	case "upper":
		return strings.ToUpper(val), nil
	case "date":
		t := dateSourceFor(varName, vars)
		if t.IsZero() {
			return "", nil
		}
		if arg == "" {
			return "", fmt.Errorf("filter date: missing strftime argument")
		}
		return strftime(t, arg), nil
	default:
		return "", fmt.Errorf("unknown filter %q", filter)
	}
}

func dateSourceFor(varName string, vars Variables) time.Time {
	switch {
	case varName == "year" || varName == "month" || varName == "day":
		if !vars.ExifDate.IsZero() {
			return vars.ExifDate
		}
		return vars.ModifiedTime
	case strings.HasPrefix(varName, "created_"):
		return vars.CreatedTime
	case strings.HasPrefix(varName, "modified_"):
		return vars.ModifiedTime
	default:
		return vars.ModifiedTime
	}
}

// strftime implements the small subset of strftime directives the
// date:<strftime> filter needs.
func strftime(t time.Time, layout string) string {
	var b strings.Builder
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		if c != '%' || i+1 >= len(layout) {
			b.WriteByte(c)
			continue
		}
		i++
		switch layout[i] {
		case 'Y':
			b.WriteString(fmt.Sprintf("%04d", t.Year()))
		case 'm':
			b.WriteString(fmt.Sprintf("%02d", t.Month()))
		case 'd':
			b.WriteString(fmt.Sprintf("%02d", t.Day()))
		case 'H':
			b.WriteString(fmt.Sprintf("%02d", t.Hour()))
		case 'M':
			b.WriteString(fmt.Sprintf("%02d", t.Minute()))
		case 'S':
			b.WriteString(fmt.Sprintf("%02d", t.Second()))
		case 'B':
			b.WriteString(t.Month().String())
		case 'A':
			b.WriteString(t.Weekday().String())
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(layout[i])
		}
	}
	return b.String()
}
