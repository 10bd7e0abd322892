// Read-only maintenance tool for the blog database
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/ppotrimba/blog/internal/cache"
	"github.com/ppotrimba/blog/internal/config"
	"github.com/ppotrimba/blog/internal/database"
	"github.com/ppotrimba/blog/internal/models"
	"github.com/ppotrimba/blog/internal/pgdb"
)

var appVersion = "-unset-"

// articleSource is what blogmgr reads, both backends implement it
type articleSource interface {
	ListArticles(ctx context.Context) ([]*models.Article, error)
	FindDanglingArticles(ctx context.Context) ([]*models.Article, error)
	GetViews(ctx context.Context, articleID int64) (int64, error)
}

func main() {
	config.AppVersion = appVersion
	log.SetPrefix("[BLOGMGR]: ")
	var (
		listArticles = flag.Bool("list", false, "List all articles")
		audit        = flag.Bool("audit", false, "Report dangling badges, reading time drift and unsafe body HTML")
		exportFile   = flag.String("export", "", "Write all articles as JSON to this file")
		dbDriver     = flag.String("db", "", "Database driver: sqlite3 or postgres (default: sqlite3)")
		sqlitePath   = flag.String("sqlite", "", "SQLite database file (default: data/blog.sq3)")
		postgresDSN  = flag.String("postgres", "", "PostgreSQL DSN")
		timeout      = flag.Duration("timeout", time.Minute, "Timeout for all queries")
	)
	flag.Parse()

	if !*listArticles && !*audit && *exportFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -list\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -audit -sqlite data/blog.sq3\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -export articles.json -postgres postgres://blog@localhost/blog\n", os.Args[0])
		os.Exit(1)
	}

	cfg := config.NewDefaultConfig()
	cfg.ApplyEnv()
	if *dbDriver != "" {
		cfg.Database.Driver = *dbDriver
	}
	if *sqlitePath != "" {
		cfg.Database.SQLitePath = *sqlitePath
	}
	if *postgresDSN != "" {
		cfg.Database.PostgresDSN = *postgresDSN
		if *dbDriver == "" {
			cfg.Database.Driver = config.DriverPostgres
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	src, closeFn, err := openSource(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s database: %v", cfg.Database.Driver, err)
	}
	defer closeFn()

	color := term.IsTerminal(int(os.Stdout.Fd()))

	switch {
	case *listArticles:
		if err := listAll(ctx, src, color); err != nil {
			log.Fatalf("Failed to list articles: %v", err)
		}
	case *audit:
		findings, err := runAudit(ctx, src, cache.NewSanitizer())
		if err != nil {
			log.Fatalf("Audit failed: %v", err)
		}
		printFindings(findings, color)
		if len(findings) > 0 {
			closeFn()
			os.Exit(2)
		}
	case *exportFile != "":
		n, err := exportArticles(ctx, src, *exportFile)
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		log.Printf("Exported %d articles to %s", n, *exportFile)
	}
}

// openSource opens the configured database read only: no migrations, no new
// files, postgres sessions default to read only transactions
func openSource(ctx context.Context, cfg *config.MainConfig) (articleSource, func(), error) {
	if cfg.Database.Driver == config.DriverPostgres {
		store, err := pgdb.Connect(ctx, cfg.Database.PostgresDSN, pgdb.PoolConfig{MaxConns: 2, ReadOnly: true})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
	dbconfig := database.DefaultDBConfig()
	dbconfig.Path = cfg.Database.SQLitePath
	dbconfig.MaxOpenConns = 1
	dbconfig.MaxIdleConns = 1
	dbconfig.ArticleCacheSize = 0
	dbconfig.ReadOnly = true
	db, err := database.OpenDatabase(dbconfig)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { db.Shutdown() }, nil
}

func listAll(ctx context.Context, src articleSource, color bool) error {
	articles, err := src.ListArticles(ctx)
	if err != nil {
		return err
	}
	if len(articles) == 0 {
		fmt.Println("No articles found.")
		return nil
	}
	rows := [][]string{{"ID", "DATE", "BADGE", "MIN", "VIEWS", "TITLE"}}
	paints := map[int]string{0: ansiBold}
	for _, a := range articles {
		views, err := src.GetViews(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("views of article %d: %w", a.ID, err)
		}
		badge := a.BadgeName()
		if a.Badge == nil {
			badge = fmt.Sprintf("missing(%d)", a.BadgeID)
			paints[len(rows)] = ansiRed
		}
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10), a.DateString, badge,
			strconv.Itoa(a.ReadingMinutes()), strconv.FormatInt(views, 10), a.Title,
		})
	}
	_, err = io.WriteString(os.Stdout, formatTable(rows, paints, color))
	return err
}

// formatTable aligns rows first and colors whole lines afterwards, tabwriter
// would count escape codes as cell width
func formatTable(rows [][]string, paints map[int]string, color bool) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()

	lines := strings.SplitAfter(buf.String(), "\n")
	var out strings.Builder
	for i, line := range lines {
		code, ok := paints[i]
		if !ok || line == "" {
			out.WriteString(line)
			continue
		}
		text := strings.TrimSuffix(line, "\n")
		out.WriteString(paint(color, code, text))
		out.WriteString(line[len(text):])
	}
	return out.String()
}

// ExportedArticle is one row of the -export file
type ExportedArticle struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Intro       string `json:"intro"`
	Body        string `json:"body"`
	Date        string `json:"date"`
	ReadingTime int    `json:"reading_time"`
	Photo       string `json:"photo"`
	BadgeID     int64  `json:"badge_id"`
	Badge       string `json:"badge"`
}

func exportArticles(ctx context.Context, src articleSource, path string) (int, error) {
	articles, err := src.ListArticles(ctx)
	if err != nil {
		return 0, err
	}
	out := make([]ExportedArticle, 0, len(articles))
	for _, a := range articles {
		out = append(out, ExportedArticle{
			ID:          a.ID,
			Title:       a.Title,
			Intro:       a.Intro,
			Body:        a.Body,
			Date:        a.DateString,
			ReadingTime: a.ReadingTime,
			Photo:       a.Photo,
			BadgeID:     a.BadgeID,
			Badge:       a.BadgeName(),
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return 0, err
	}
	return len(out), nil
}
