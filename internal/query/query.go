// Package query builds Gmail search strings from the archiver's filter
// options.
package query

import (
	"fmt"
	"strings"
	"time"
)

// Filter holds the optional message filters. All set fields are
// combined with logical AND.
type Filter struct {
	// Free-text Gmail search query, passed through verbatim.
	Query string

	// Label restricts matches to a single Gmail label.
	Label string

	// Start and End bound the message date. End is inclusive of
	// the whole day.
	Start time.Time
	End   time.Time
}

// Build renders the filter as a Gmail search string. Spam and trash
// are always excluded so the archiver never resurrects discarded mail.
func Build(f Filter) string {
	var parts []string
	if f.Query != "" {
		parts = append(parts, f.Query)
	}
	if f.Label != "" {
		parts = append(parts, fmt.Sprintf("label:%s", f.Label))
	}
	if !f.Start.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%s", f.Start.Format("2006/01/02")))
	}
	if !f.End.IsZero() {
		// Gmail's before: operator is exclusive; push it one
		// day out so End covers its whole day.
		parts = append(parts, fmt.Sprintf("before:%s", f.End.AddDate(0, 0, 1).Format("2006/01/02")))
	}
	parts = append(parts, "-in:spam", "-in:trash")
	return strings.Join(parts, " ")
}
