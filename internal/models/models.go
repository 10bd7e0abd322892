// Package models defines core data structures for the blog
package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidArticleID is returned for identifiers that are not a positive integer
var ErrInvalidArticleID = errors.New("invalid article id")

// Badge represents an article category (Badge table)
type Badge struct {
	ID   int64  `json:"id" db:"IdBadge"`
	Name string `json:"name" db:"Name"`
}

// Article represents a blog post joined with its badge
type Article struct {
	ID          int64     `json:"id" db:"IdArticle"`
	Title       string    `json:"title" db:"Title"`
	Intro       string    `json:"intro" db:"Intro"`
	Body        string    `json:"body" db:"Body"`
	DateString  string    `json:"date_string" db:"Date"`
	Date        time.Time `json:"date"`                          // parsed DateString, zero if unparsable
	ReadingTime int       `json:"reading_time" db:"ReadingTime"` // minutes, <= 0 means unknown
	Photo       string    `json:"photo" db:"PhotoArticle"`
	BadgeID     int64     `json:"badge_id" db:"IdBadge"`
	Badge       *Badge    `json:"badge,omitempty"`
}

// ParseArticleID validates a caller supplied identifier.
// Only plain ASCII digits forming a value in 1..MaxInt64 are accepted.
func ParseArticleID(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidArticleID)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidArticleID, s)
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidArticleID, s)
	}
	if id < 1 {
		return 0, fmt.Errorf("%w: %d is not positive", ErrInvalidArticleID, id)
	}
	return id, nil
}

var articleDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"January 2, 2006",
}

// ParseArticleDate parses the stored Date column, zero time if no layout matches
func ParseArticleDate(s string) time.Time {
	for _, layout := range articleDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Normalize fixes up a freshly scanned row: legacy latin-1 text and the parsed date
func (a *Article) Normalize() {
	a.Title = ConvertToUTF8(a.Title)
	a.Intro = ConvertToUTF8(a.Intro)
	a.Body = ConvertToUTF8(a.Body)
	a.DateString = ConvertToUTF8(a.DateString)
	a.Date = ParseArticleDate(a.DateString)
	if a.Badge != nil {
		a.Badge.Name = ConvertToUTF8(a.Badge.Name)
	}
}

// DisplayDate returns the human readable date, or the raw column value
func (a *Article) DisplayDate() string {
	if a.Date.IsZero() {
		return a.DateString
	}
	return a.Date.Format("January 2, 2006")
}

// ReadingMinutes returns the stored reading time or an estimate from the body
func (a *Article) ReadingMinutes() int {
	if a.ReadingTime > 0 {
		return a.ReadingTime
	}
	return EstimateReadingTime(a.Body)
}

// ReadingTimeLabel returns e.g. "5 min"
func (a *Article) ReadingTimeLabel() string {
	return strconv.Itoa(a.ReadingMinutes()) + " min"
}

// BadgeName returns the badge label or an empty string
func (a *Article) BadgeName() string {
	if a.Badge == nil {
		return ""
	}
	return a.Badge.Name
}

// OrderByIDs arranges articles in the order of ids, the first row per id wins
func OrderByIDs(articles []*Article, ids []int64) []*Article {
	byID := make(map[int64]*Article, len(articles))
	for _, a := range articles {
		if _, exists := byID[a.ID]; !exists {
			byID[a.ID] = a
		}
	}
	ordered := make([]*Article, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok && !seen[id] {
			ordered = append(ordered, a)
			seen[id] = true
		}
	}
	return ordered
}
