// Package resolver picks the latest published file per branch and feed type
// out of a chain's file listing.
package resolver

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/op/go-logging"

	"pricefeed/model"
)

var log = logging.MustGetLogger("resolver")

// feedDatePattern matches the 12-digit stamp right before the extension:
// PriceFull7290058108879-001-202507271024.gz, ...-202507271024.xml.gz
var feedDatePattern = regexp.MustCompile(`(?:^|[^0-9])(\d{12})(?:\.[A-Za-z0-9]+)+$`)

// Candidate is a listing row after extraction.
type Candidate struct {
	Filename   string
	BranchCode string
	FeedType   model.FeedType
	FeedDate   string
}

// FeedTypeOf reports which feed the filename belongs to.
func FeedTypeOf(filename string) (model.FeedType, bool) {
	switch {
	case strings.Contains(filename, string(model.FeedPrice)):
		return model.FeedPrice, true
	case strings.Contains(filename, string(model.FeedPromo)):
		return model.FeedPromo, true
	}
	return "", false
}

// FeedDate extracts the YYYYMMDDHHmm stamp, or "" when there is none.
func FeedDate(filename string) string {
	m := feedDatePattern.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return m[1]
}

// BranchCode returns the token before the first whitespace, e.g. "339" for "339 יפו תלאביב".
func BranchCode(token string) string {
	token = strings.TrimSpace(token)
	if i := strings.IndexFunc(token, unicode.IsSpace); i >= 0 {
		return token[:i]
	}
	return token
}

// ParseEntry extracts a candidate from one listing row. ok is false for rows
// that are malformed or belong to neither feed.
func ParseEntry(e model.FileEntry) (Candidate, bool) {
	filename := strings.TrimSpace(e.Filename)
	branch := BranchCode(e.BranchToken)
	if filename == "" || branch == "" {
		return Candidate{}, false
	}
	feed, ok := FeedTypeOf(filename)
	if !ok {
		return Candidate{}, false
	}
	return Candidate{
		Filename:   filename,
		BranchCode: branch,
		FeedType:   feed,
		FeedDate:   FeedDate(filename),
	}, true
}

// Resolve keeps, for every (branch, feed type), the entry with the greatest
// feed date. Ties keep the entry seen first. Branches that publish only one
// feed type get a missing ref for the other.
func Resolve(entries []model.FileEntry) map[string]model.BranchFiles {
	resolved := make(map[string]model.BranchFiles)
	seen := make(map[string]map[model.FeedType]bool)
	skipped := 0

	for i, e := range entries {
		c, ok := ParseEntry(e)
		if !ok {
			if strings.TrimSpace(e.Filename) == "" || BranchCode(e.BranchToken) == "" {
				log.Warningf("skipping malformed listing row %d: %+v", i, e)
			}
			skipped++
			continue
		}

		files, exists := resolved[c.BranchCode]
		if !exists {
			files = model.BranchFiles{Price: model.MissingFile(), Promo: model.MissingFile()}
			seen[c.BranchCode] = make(map[model.FeedType]bool)
		}

		current := files.Ref(c.FeedType)
		if !seen[c.BranchCode][c.FeedType] || c.FeedDate > current.FeedDate {
			files.Set(c.FeedType, model.FileRef{
				Filename: c.Filename,
				FeedDate: c.FeedDate,
				Status:   model.FileFound,
			})
			seen[c.BranchCode][c.FeedType] = true
		}
		resolved[c.BranchCode] = files
	}

	log.Debugf("resolved files for %d branches (%d rows skipped)", len(resolved), skipped)
	return resolved
}
