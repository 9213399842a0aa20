package console

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter types accepted by NewOutputFilter.
const (
	FilterNone   = "none"
	FilterErrors = "errors"
	FilterSearch = "search"
	FilterRegex  = "regex"
)

// errorKeywords covers steamcmd failures and the dedicated server's RPT style output.
var errorKeywords = []string{
	"error",
	"exception",
	"fatal",
	"warning",
	"failed",
	"failure",
	"cannot",
	"missing",
	"timeout",
}

// OutputFilter filters console output based on criteria
type OutputFilter struct {
	FilterType    string
	Pattern       string
	CaseSensitive bool
	regex         *regexp.Regexp
}

// FilterResult represents the result of filtering a line
type FilterResult struct {
	Include   bool
	Highlight []int // start/end of the match
}

// NewOutputFilter creates a new output filter. An empty filter type means none.
func NewOutputFilter(filterType, pattern string, caseSensitive bool) (*OutputFilter, error) {
	if filterType == "" {
		filterType = FilterNone
	}

	filter := &OutputFilter{
		FilterType:    filterType,
		Pattern:       pattern,
		CaseSensitive: caseSensitive,
	}

	switch filterType {
	case FilterNone, FilterErrors, FilterSearch:
	case FilterRegex:
		if pattern == "" {
			break
		}
		flags := ""
		if !caseSensitive {
			flags = "(?i)"
		}
		compiled, err := regexp.Compile(flags + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		filter.regex = compiled
	default:
		return nil, fmt.Errorf("unknown filter type %q", filterType)
	}

	return filter, nil
}

// Filter applies the filter to a line of output
func (f *OutputFilter) Filter(line string) FilterResult {
	result := FilterResult{Include: true}

	switch f.FilterType {
	case FilterErrors:
		start, end := matchErrorKeyword(line)
		if start < 0 {
			result.Include = false
			return result
		}
		result.Highlight = []int{start, end}

	case FilterSearch:
		if f.Pattern == "" {
			return result
		}

		searchLine := line
		searchPattern := f.Pattern
		if !f.CaseSensitive {
			searchLine = strings.ToLower(line)
			searchPattern = strings.ToLower(f.Pattern)
		}

		idx := strings.Index(searchLine, searchPattern)
		if idx < 0 {
			result.Include = false
			return result
		}
		result.Highlight = []int{idx, idx + len(f.Pattern)}

	case FilterRegex:
		if f.regex == nil {
			return result
		}
		match := f.regex.FindStringIndex(line)
		if match == nil {
			result.Include = false
			return result
		}
		result.Highlight = match
	}

	return result
}

// Match reports whether line passes the filter.
func (f *OutputFilter) Match(line string) bool {
	if f == nil {
		return true
	}
	return f.Filter(line).Include
}

// FilterLines applies the filter to multiple lines
func (f *OutputFilter) FilterLines(lines []string) []string {
	if f == nil || f.FilterType == FilterNone {
		return lines
	}

	filtered := []string{}
	for _, line := range lines {
		if f.Match(line) {
			filtered = append(filtered, line)
		}
	}
	return filtered
}

func matchErrorKeyword(line string) (int, int) {
	lowerLine := strings.ToLower(line)
	for _, keyword := range errorKeywords {
		if idx := strings.Index(lowerLine, keyword); idx >= 0 {
			return idx, idx + len(keyword)
		}
	}
	return -1, -1
}
