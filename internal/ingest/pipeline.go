package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/internal/reference"
	"github.com/ghgledger/ghgledger/pkg/types"
)

// Stage is a step of one ingestion run.
type Stage string

const (
	StageIdle          Stage = "idle"
	StageHeaderCheck   Stage = "header_check"
	StageRowProcessing Stage = "row_processing"
	StageFinalize      Stage = "finalize"
	StageCommitted     Stage = "committed"
	StageRejected      Stage = "rejected"
)

// Fixed column labels of a wide-format emissions file.
const (
	CountryCodeColumn = "Country Code"
	SeriesCodeColumn  = "Series Code"
)

// DefaultWorkers bounds concurrent row processing.
const DefaultWorkers = 8

const utf8BOM = "\ufeff"

var yearLabel = regexp.MustCompile(`(?:^|\D)(\d{4})(?:\D|$)`)

// Report summarizes one ingestion run. It is returned alongside a rejection
// error so callers can see how far the run got.
type Report struct {
	Stage Stage `json:"stage"`

	// Rows is the number of data rows read, malformed lines excluded
	Rows           int `json:"rows"`
	SkippedRows    int `json:"skipped_rows"`
	SkippedCells   int `json:"skipped_cells"`
	MalformedLines int `json:"malformed_lines"`
	YearColumns    int `json:"year_columns"`

	CommitResult
}

type yearColumn struct {
	index int
	year  int
}

type layout struct {
	country int
	series  int
	years   []yearColumn
}

type rowResult struct {
	candidates   []types.Candidate
	skipped      bool
	skippedCells int
}

// Pipeline turns a wide-format CSV buffer into emission records.
type Pipeline struct {
	writer  *Writer
	workers int
	logger  *zap.Logger
}

// NewPipeline creates a pipeline committing through writer. workers <= 0
// means DefaultWorkers.
func NewPipeline(writer *Writer, workers int, logger *zap.Logger) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pipeline{writer: writer, workers: workers, logger: logger}
}

// Ingest runs the pipeline without stage notifications.
func (p *Pipeline) Ingest(ctx context.Context, data []byte) (*Report, error) {
	return p.Run(ctx, data, nil)
}

// Run parses data, resolves references concurrently, and commits the
// deduplicated batch in one transaction. onStage, if set, is called on every
// stage transition. Row-level failures skip the row or cell; only a missing
// header, an empty or fully duplicated batch, a conflict or a store failure
// reject the run, and a rejected run commits nothing.
func (p *Pipeline) Run(ctx context.Context, data []byte, onStage func(Stage)) (report *Report, err error) {
	report = &Report{Stage: StageIdle}
	advance := func(s Stage) {
		report.Stage = s
		if onStage != nil {
			onStage(s)
		}
	}
	defer func(start time.Time) {
		if err != nil {
			advance(StageRejected)
			p.logger.Warn("ingestion rejected",
				zap.String("code", ledgererr.GetCode(err)),
				zap.Int("rows", report.Rows),
				zap.Error(err))
		}
		p.writer.observe("ingest", start, err)
	}(time.Now())

	advance(StageHeaderCheck)
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return report, ledgererr.InvalidFormat("file is empty")
	}
	if err != nil {
		return report, ledgererr.InvalidFormat("unreadable header: %v", err)
	}
	cols, err := parseHeader(header)
	if err != nil {
		return report, err
	}
	report.YearColumns = len(cols.years)

	advance(StageRowProcessing)
	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			report.MalformedLines++
			p.logger.Warn("skipping malformed line", zap.Int("line", perr.Line), zap.Error(err))
			continue
		}
		if err != nil {
			return report, ledgererr.InvalidFormat("read csv: %v", err)
		}
		rows = append(rows, row)
	}
	report.Rows = len(rows)

	results := make([]rowResult, len(rows))
	memo := reference.NewMemo(p.writer.resolver)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, row := range rows {
		g.Go(func() error {
			res, err := p.processRow(gctx, memo, cols, i, row)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	var candidates []types.Candidate
	for _, res := range results {
		if res.skipped {
			report.SkippedRows++
		}
		report.SkippedCells += res.skippedCells
		candidates = append(candidates, res.candidates...)
	}

	advance(StageFinalize)
	commit, err := p.writer.commit(ctx, candidates)
	if err != nil {
		report.Candidates = len(candidates)
		return report, err
	}
	report.CommitResult = *commit
	advance(StageCommitted)
	return report, nil
}

// processRow resolves one data row into candidates. Only store failures are
// returned as errors.
func (p *Pipeline) processRow(ctx context.Context, memo *reference.Memo, cols layout, index int, row []string) (rowResult, error) {
	cell := func(i int) string {
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	alpha3, series := cell(cols.country), cell(cols.series)
	if alpha3 == "" || series == "" {
		p.logger.Warn("skipping row without identifying codes", zap.Int("row", index+1))
		return rowResult{skipped: true}, nil
	}

	country, err := memo.Country(ctx, alpha3)
	if err == nil {
		var sector *types.Sector
		if sector, err = memo.Sector(ctx, series); err == nil {
			return p.rowCandidates(cols, cell, country, sector), nil
		}
	}
	if errors.Is(err, ledgererr.ErrNotFound) {
		p.logger.Warn("skipping row with unknown reference",
			zap.Int("row", index+1),
			zap.String("country", alpha3),
			zap.String("series", series),
			zap.Error(err))
		return rowResult{skipped: true}, nil
	}
	return rowResult{}, err
}

func (p *Pipeline) rowCandidates(cols layout, cell func(int) string, country *types.Country, sector *types.Sector) rowResult {
	res := rowResult{candidates: make([]types.Candidate, 0, len(cols.years))}
	for _, yc := range cols.years {
		amount, err := strconv.ParseFloat(cell(yc.index), 64)
		if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
			res.skippedCells++
			continue
		}
		res.candidates = append(res.candidates, types.Candidate{
			CountryID: country.ID,
			SectorID:  sector.ID,
			Year:      yc.year,
			Amount:    amount,
			Alpha3:    country.Alpha3,
		})
	}
	return res
}

// parseHeader locates the fixed columns and the year columns. Labels that
// carry no 4-digit year, or a year outside the accepted range, are ignored.
func parseHeader(header []string) (layout, error) {
	cols := layout{country: -1, series: -1}
	for i, label := range header {
		if i == 0 {
			label = strings.TrimPrefix(label, utf8BOM)
		}
		label = strings.TrimSpace(label)

		switch label {
		case CountryCodeColumn:
			if cols.country < 0 {
				cols.country = i
			}
			continue
		case SeriesCodeColumn:
			if cols.series < 0 {
				cols.series = i
			}
			continue
		}

		m := yearLabel.FindStringSubmatch(label)
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		if types.ValidYear(year) {
			cols.years = append(cols.years, yearColumn{index: i, year: year})
		}
	}

	var missing []string
	if cols.country < 0 {
		missing = append(missing, CountryCodeColumn)
	}
	if cols.series < 0 {
		missing = append(missing, SeriesCodeColumn)
	}
	if len(missing) > 0 {
		return layout{}, ledgererr.InvalidFormat("header is missing required columns: %s", strings.Join(missing, ", ")).
			WithDetails(map[string]interface{}{"missing": missing})
	}
	return cols, nil
}
