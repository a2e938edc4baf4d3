package importer

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is one term/replacement pair read from an import file
type Record struct {
	Term        string `csv:"term" parquet:"term" json:"term"`
	Replacement string `csv:"replacement" parquet:"replacement" json:"replacement"`
}

// Result summarizes an import run
type Result struct {
	File         string        `json:"file"`
	Format       FileFormat    `json:"format"`
	TotalRecords int64         `json:"total_records"`
	Imported     int64         `json:"imported"`
	Skipped      int64         `json:"skipped"`
	Duplicates   int64         `json:"duplicates"`
	Rules        int           `json:"rules"`
	DryRun       bool          `json:"dry_run,omitempty"`
	Duration     time.Duration `json:"duration"`
	Errors       []string      `json:"errors,omitempty"`
}

// Config contains import configuration
type Config struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxTermLength  int    `yaml:"max_term_length" mapstructure:"max_term_length"`
	MetadataPrefix string `yaml:"metadata_prefix" mapstructure:"metadata_prefix"`
	DryRun         bool   `yaml:"dry_run" mapstructure:"dry_run"`
}

// DefaultConfig returns the import defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:      500,
		MaxTermLength:  256,
		MetadataPrefix: "_",
	}
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension. Unknown extensions
// are read as CSV.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
