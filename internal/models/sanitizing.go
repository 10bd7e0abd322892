package models

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// WordsPerMinute is the reading speed used for estimates
const WordsPerMinute = 200

// ConvertToUTF8 returns valid UTF-8 text. Rows imported from the old MySQL dump
// may still carry Latin-1 bytes, those are decoded as ISO-8859-1.
func ConvertToUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	decoder := charmap.ISO8859_1.NewDecoder()
	result, _, err := transform.String(decoder, text)
	if err != nil {
		return strings.ToValidUTF8(text, "�")
	}
	return result
}

// PlainText extracts the visible text of an HTML fragment
func PlainText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(doc.Text())
}

// EstimateReadingTime returns the minutes needed to read the body, at least 1
func EstimateReadingTime(bodyHTML string) int {
	words := len(strings.Fields(PlainText(bodyHTML)))
	minutes := (words + WordsPerMinute - 1) / WordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}
