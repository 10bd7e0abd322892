package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/ppotrimba/blog/internal/models"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
)

func paint(color bool, code, s string) string {
	if !color {
		return s
	}
	return code + s + ansiReset
}

type findingKind string

const (
	findingDanglingBadge findingKind = "dangling-badge"
	findingReadingTime   findingKind = "reading-time"
	findingUnsafeBody    findingKind = "unsafe-body"
	findingBadDate       findingKind = "bad-date"
)

type finding struct {
	ArticleID int64
	Kind      findingKind
	Detail    string
}

// bodySanitizer reports whether sanitizing would change a body
type bodySanitizer interface {
	Alters(raw string) bool
}

// readingTimeTolerance is how far (minutes) a stored reading time may drift from the estimate
const readingTimeTolerance = 2

func runAudit(ctx context.Context, src articleSource, san bodySanitizer) ([]finding, error) {
	dangling, err := src.FindDanglingArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("dangling badges: %w", err)
	}
	articles, err := src.ListArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	var findings []finding
	for _, a := range dangling {
		findings = append(findings, finding{a.ID, findingDanglingBadge, fmt.Sprintf("badge %d does not exist", a.BadgeID)})
	}
	findings = append(findings, auditArticles(articles, san)...)

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].ArticleID < findings[j].ArticleID
	})
	return findings, nil
}

// auditArticles checks the per-row content, not the join
func auditArticles(articles []*models.Article, san bodySanitizer) []finding {
	var findings []finding
	for _, a := range articles {
		if a.DateString != "" && a.Date.IsZero() {
			findings = append(findings, finding{a.ID, findingBadDate, fmt.Sprintf("unparsable date %q", a.DateString)})
		}
		if a.ReadingTime > 0 && a.Body != "" {
			est := models.EstimateReadingTime(a.Body)
			if diff := a.ReadingTime - est; diff > readingTimeTolerance || diff < -readingTimeTolerance {
				findings = append(findings, finding{a.ID, findingReadingTime, fmt.Sprintf("stored %d min, estimated %d min", a.ReadingTime, est)})
			}
		}
		if san != nil && san.Alters(a.Body) {
			findings = append(findings, finding{a.ID, findingUnsafeBody, "body HTML is changed by the sanitizer"})
		}
	}
	return findings
}

func printFindings(findings []finding, color bool) {
	if len(findings) == 0 {
		fmt.Println(paint(color, ansiBold, "No problems found."))
		return
	}
	for _, f := range findings {
		code := ansiYellow
		if f.Kind == findingDanglingBadge || f.Kind == findingUnsafeBody {
			code = ansiRed
		}
		fmt.Printf("article %d: %s %s\n", f.ArticleID, paint(color, code, string(f.Kind)), f.Detail)
	}
	fmt.Printf("%d problems\n", len(findings))
}
