// Package importer bulk-loads rules from CSV, JSON Lines or Parquet files
// and merges them into the active rule table.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/raaihank/termswap/internal/errs"
	"github.com/raaihank/termswap/internal/rules"
)

// RuleSink receives the imported rules. The engine implements it.
type RuleSink interface {
	MergeRules(extra []rules.Rule) (*rules.Table, error)
}

// Importer reads rule files and merges them through a RuleSink
type Importer struct {
	fs     afero.Fs
	sink   RuleSink
	config Config
	logger *zap.Logger
}

// New creates a new importer. Zero config fields take their defaults.
func New(fs afero.Fs, sink RuleSink, config Config, logger *zap.Logger) *Importer {
	defaults := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxTermLength <= 0 {
		config.MaxTermLength = defaults.MaxTermLength
	}
	if config.MetadataPrefix == "" {
		config.MetadataPrefix = defaults.MetadataPrefix
	}
	return &Importer{
		fs:     fs,
		sink:   sink,
		config: config,
		logger: logger.With(zap.String("component", "importer")),
	}
}

// ImportFile reads every valid record of path and merges them in one table
// revision. Nothing is merged when the file cannot be read to the end.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	format := DetectFileFormat(path)
	result := &Result{File: path, Format: format, DryRun: im.config.DryRun}

	im.logger.Info("Starting rule import",
		zap.String("file", path),
		zap.String("format", string(format)),
		zap.Int("batch_size", im.config.BatchSize))

	file, err := im.fs.Open(path)
	if err != nil {
		return result, errs.IO("failed to open import file", err)
	}
	defer file.Close()

	c := &collector{config: im.config, logger: im.logger, seen: make(map[string]bool), result: result}

	switch format {
	case FormatCSV:
		err = im.readCSV(ctx, file, c)
	case FormatParquet:
		err = im.readParquet(ctx, file, c)
	case FormatJSON:
		err = im.readJSON(ctx, file, c)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, fmt.Errorf("%s import failed: %w", format, err)
	}

	result.Imported = int64(len(c.rules))
	if len(c.rules) > 0 && !im.config.DryRun {
		table, err := im.sink.MergeRules(c.rules)
		if err != nil {
			return result, err
		}
		result.Rules = table.Len()
	}
	result.Duration = time.Since(start)

	im.logger.Info("Rule import completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("imported", result.Imported),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("duplicates", result.Duplicates),
		zap.Bool("dry_run", result.DryRun),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// readCSV accepts an optional header naming the term and replacement
// columns. Without one the first two columns are used.
func (im *Importer) readCSV(ctx context.Context, file io.Reader, c *collector) error {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	termCol, replCol := 0, 1
	first, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	if t, r, ok := headerColumns(first); ok {
		termCol, replCol = t, r
		im.logger.Debug("CSV header detected", zap.Strings("columns", first))
		first = nil
	}

	return im.processBatches(ctx, func() ([]Record, error) {
		var batch []Record
		if first != nil {
			batch = append(batch, csvRecord(first, termCol, replCol))
			first = nil
		}
		for len(batch) < im.config.BatchSize {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				im.logger.Warn("Failed to read CSV record", zap.Error(err))
				c.fail(err)
				continue
			}
			batch = append(batch, csvRecord(row, termCol, replCol))
		}
		return batch, nil
	}, c)
}

func headerColumns(row []string) (term, replacement int, ok bool) {
	term, replacement = -1, -1
	for i, name := range row {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "term":
			term = i
		case "replacement":
			replacement = i
		}
	}
	return term, replacement, term >= 0 && replacement >= 0
}

func csvRecord(row []string, termCol, replCol int) Record {
	var rec Record
	if termCol < len(row) {
		rec.Term = row[termCol]
	}
	if replCol < len(row) {
		rec.Replacement = row[replCol]
	}
	return rec
}

// readParquet reads rows with term and replacement columns
func (im *Importer) readParquet(ctx context.Context, file afero.File, c *collector) error {
	info, err := file.Stat()
	if err != nil {
		return err
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}

	reader := parquet.NewReader(pf)
	defer reader.Close()

	return im.processBatches(ctx, func() ([]Record, error) {
		var batch []Record
		for len(batch) < im.config.BatchSize {
			var rec Record
			err := reader.Read(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read Parquet record: %w", err)
			}
			batch = append(batch, rec)
		}
		return batch, nil
	}, c)
}

// readJSON accepts JSON Lines of {"term","replacement"} objects, an array of
// such objects, or a single object mapping terms to replacements.
func (im *Importer) readJSON(ctx context.Context, file io.Reader, c *collector) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	content := string(data)

	var records []Record
	doc := gjson.Parse(content)
	switch {
	case gjson.Valid(content) && doc.IsArray():
		doc.ForEach(func(_, value gjson.Result) bool {
			records = append(records, jsonRecord(value))
			return true
		})
	case gjson.Valid(content) && doc.IsObject() && !doc.Get("term").Exists():
		doc.ForEach(func(key, value gjson.Result) bool {
			records = append(records, Record{Term: key.String(), Replacement: value.String()})
			return true
		})
	default:
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if !gjson.Valid(line) || !gjson.Parse(line).IsObject() {
				c.fail(fmt.Errorf("invalid JSON line: %.40s", line))
				continue
			}
			records = append(records, jsonRecord(gjson.Parse(line)))
		}
	}

	next := 0
	return im.processBatches(ctx, func() ([]Record, error) {
		end := next + im.config.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[next:end]
		next = end
		return batch, nil
	}, c)
}

func jsonRecord(value gjson.Result) Record {
	return Record{
		Term:        value.Get("term").String(),
		Replacement: value.Get("replacement").String(),
	}
}

// processBatches pulls batches until readBatch returns an empty one
func (im *Importer) processBatches(ctx context.Context, readBatch func() ([]Record, error), c *collector) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		for _, rec := range batch {
			c.add(rec)
		}
		im.logger.Debug("Batch processed",
			zap.Int("batch_size", len(batch)),
			zap.Int64("records", c.result.TotalRecords))
	}
}

// collector validates records and keeps the first occurrence of each term
type collector struct {
	config Config
	logger *zap.Logger
	seen   map[string]bool
	rules  []rules.Rule
	result *Result
}

func (c *collector) add(rec Record) {
	c.result.TotalRecords++

	term := strings.TrimSpace(rec.Term)
	replacement := strings.TrimSpace(rec.Replacement)
	switch {
	case term == "" || replacement == "":
		c.logger.Debug("Skipping record: empty term or replacement")
		c.result.Skipped++
		return
	case strings.HasPrefix(term, c.config.MetadataPrefix):
		c.logger.Debug("Skipping metadata record", zap.String("term", term))
		c.result.Skipped++
		return
	case len(term) > c.config.MaxTermLength || len(replacement) > c.config.MaxTermLength:
		c.logger.Debug("Skipping record: too long", zap.Int("length", len(term)))
		c.result.Skipped++
		return
	}

	key := strings.ToLower(term)
	if c.seen[key] {
		c.result.Duplicates++
		return
	}
	c.seen[key] = true
	c.rules = append(c.rules, rules.Rule{Term: term, Replacement: replacement})
}

func (c *collector) fail(err error) {
	c.result.TotalRecords++
	c.result.Skipped++
	c.result.Errors = append(c.result.Errors, err.Error())
}
