package workers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/go-collection-boot/async"
	"github.com/SaiNageswarS/support-agent/llm"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Uploader stores one document in the search index.
type Uploader interface {
	UploadDocument(ctx context.Context, id string, embedding []float32, metadata map[string]any) error
}

// HistoricalTicket is one ticket aggregated from an export where every row is one
// discussion entry.
type HistoricalTicket struct {
	ID          string
	TicketID    string
	Title       string
	CompanyName string
	DateEntered string
	Discussion  string
	Type        string
	Priority    string
	Source      string
	Team        string
}

func (t HistoricalTicket) Metadata() map[string]any {
	return map[string]any{
		"ticket_id":    t.TicketID,
		"title":        t.Title,
		"company_name": t.CompanyName,
		"date_entered": t.DateEntered,
		"discussion":   t.Discussion,
		"type":         t.Type,
		"priority":     t.Priority,
		"source":       t.Source,
		"team":         t.Team,
	}
}

type IndexSummary struct {
	Rows     int `json:"rows"`
	Tickets  int `json:"tickets"`
	Uploaded int `json:"uploaded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// export column -> field, with the legacy discussion column name
var columnAliases = map[string]string{
	"TicketNbr":    "ticket_id",
	"Summary":      "title",
	"Company_Name": "company_name",
	"Date_Entered": "date_entered",
	"Discussion":   "discussion",
	"Textbox112":   "discussion",
	"Type":         "type",
	"Priority":     "priority",
	"Source":       "source",
	"Team":         "team",
}

// ParseTicketCSV groups rows by ticket number. The first non-empty value wins for
// every field except the discussion, which is joined across rows. Tickets are
// ordered by ticket number, highest first, and numbered from 1.
func ParseTicketCSV(r io.Reader) ([]HistoricalTicket, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("error reading csv header: %w", err)
	}

	columns := map[string]int{}
	for i, name := range header {
		if field, ok := columnAliases[strings.TrimSpace(name)]; ok {
			if _, seen := columns[field]; !seen {
				columns[field] = i
			}
		}
	}
	if _, ok := columns["ticket_id"]; !ok {
		logger.Info("CSV has no TicketNbr column; rows are grouped under an empty ticket id")
	}

	grouped := map[string]*HistoricalTicket{}
	discussions := map[string][]string{}
	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rows, fmt.Errorf("error reading csv row %d: %w", rows+2, err)
		}
		rows++

		get := func(field string) string {
			i, ok := columns[field]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		id := get("ticket_id")
		t, ok := grouped[id]
		if !ok {
			t = &HistoricalTicket{TicketID: id}
			grouped[id] = t
		}
		firstNonEmpty(&t.Title, get("title"))
		firstNonEmpty(&t.CompanyName, get("company_name"))
		firstNonEmpty(&t.DateEntered, get("date_entered"))
		firstNonEmpty(&t.Type, get("type"))
		firstNonEmpty(&t.Priority, get("priority"))
		firstNonEmpty(&t.Source, get("source"))
		firstNonEmpty(&t.Team, get("team"))
		if d := get("discussion"); d != "" {
			discussions[id] = append(discussions[id], d)
		}
	}

	out := make([]HistoricalTicket, 0, len(grouped))
	for id, t := range grouped {
		t.Discussion = strings.Join(discussions[id], " ")
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return ticketNumberAfter(out[i].TicketID, out[j].TicketID) })
	for i := range out {
		out[i].ID = strconv.Itoa(i + 1)
	}
	return out, rows, nil
}

// ticketNumberAfter orders ticket numbers newest first. Numeric ids compare as
// numbers; anything else falls back to string order.
func ticketNumberAfter(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na > nb
	}
	return a > b
}

func firstNonEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// TicketIndexer embeds historical ticket titles and uploads them to the search index.
type TicketIndexer struct {
	embedder  llm.Embedder
	uploader  Uploader
	dataDir   string
	batchSize int
	onIndexed func(outcome string)
}

func NewTicketIndexer(embedder llm.Embedder, uploader Uploader, dataDir string, onIndexed func(outcome string)) *TicketIndexer {
	if onIndexed == nil {
		onIndexed = func(string) {}
	}
	return &TicketIndexer{
		embedder:  embedder,
		uploader:  uploader,
		dataDir:   dataDir,
		batchSize: 16,
		onIndexed: onIndexed,
	}
}

// ImportFile indexes a CSV export from the data directory.
func (x *TicketIndexer) ImportFile(ctx context.Context, filename string) (*IndexSummary, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		return nil, status.Errorf(codes.InvalidArgument, "invalid csv filename %q", filename)
	}

	f, err := os.Open(filepath.Join(x.dataDir, filename))
	if errors.Is(err, os.ErrNotExist) {
		return nil, status.Errorf(codes.NotFound, "csv file %s not found", filename)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "error opening %s", filename)
	}
	defer f.Close()

	return x.Index(ctx, f)
}

// Index uploads every ticket in the export. Tickets without a title are skipped,
// embedding or upload failures are counted and do not stop the run.
func (x *TicketIndexer) Index(ctx context.Context, r io.Reader) (*IndexSummary, error) {
	parsed, rows, err := ParseTicketCSV(r)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	summary := &IndexSummary{Rows: rows, Tickets: len(parsed)}
	var pending []HistoricalTicket
	for _, t := range parsed {
		if t.Title == "" {
			summary.Skipped++
			x.onIndexed("skipped")
			continue
		}
		pending = append(pending, t)
	}

	for start := 0; start < len(pending); start += x.batchSize {
		if err := ctx.Err(); err != nil {
			return summary, status.FromContextError(err).Err()
		}

		batch := pending[start:min(start+x.batchSize, len(pending))]
		x.indexBatch(ctx, batch, summary)
	}

	logger.Info("Historical tickets indexed",
		zap.Int("rows", summary.Rows), zap.Int("tickets", summary.Tickets),
		zap.Int("uploaded", summary.Uploaded), zap.Int("skipped", summary.Skipped), zap.Int("failed", summary.Failed))
	return summary, nil
}

func (x *TicketIndexer) indexBatch(ctx context.Context, batch []HistoricalTicket, summary *IndexSummary) {
	titles := make([]string, len(batch))
	for i, t := range batch {
		titles[i] = t.Title
	}

	vectors, err := x.embedder.Embed(ctx, titles)
	if err != nil || len(vectors) != len(batch) {
		logger.Error("Failed to embed ticket titles", zap.Int("batch", len(batch)), zap.Error(err))
		summary.Failed += len(batch)
		for range batch {
			x.onIndexed("failed")
		}
		return
	}

	uploads := make([]<-chan async.Result[string], len(batch))
	for i, t := range batch {
		uploads[i] = async.Go(func() (string, error) {
			if err := x.uploader.UploadDocument(ctx, t.ID, vectors[i], t.Metadata()); err != nil {
				logger.Error("Failed to upload ticket", zap.String("id", t.ID), zap.String("ticket_id", t.TicketID), zap.Error(err))
				return "failed", nil
			}
			return "uploaded", nil
		})
	}

	outcomes, _ := async.AwaitAll(uploads...)
	for _, outcome := range outcomes {
		if outcome == "uploaded" {
			summary.Uploaded++
		} else {
			summary.Failed++
		}
		x.onIndexed(outcome)
	}
}
