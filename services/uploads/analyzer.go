// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package uploads validates uploaded data files, sniffs their structure
// and copies them into a per-user namespace. Structural analysis is
// best-effort: a file that passes the extension and size gates but
// cannot be parsed still uploads, with the parse failure recorded in
// the analysis_error field.
package uploads

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"
)

// sampleRowLimit bounds how many data rows the sniffers read. Large
// files are characterized from the sample, not read in full.
const sampleRowLimit = 1000

var allowedExtensions = map[string]bool{
	".csv":     true,
	".xlsx":    true,
	".xls":     true,
	".json":    true,
	".parquet": true,
	".txt":     true,
}

// Analysis is the content-derived half of an upload record. Which
// fields are populated depends on the detected format.
type Analysis struct {
	Columns        []string          `json:"columns"`
	RowCount       int               `json:"row_count"`
	DataTypes      map[string]string `json:"data_types,omitempty"`
	NullCounts     map[string]int    `json:"null_counts,omitempty"`
	SampleData     any               `json:"sample_data,omitempty"`
	SheetNames     []string          `json:"sheet_names,omitempty"`
	ActiveSheet    string            `json:"active_sheet,omitempty"`
	Structure      string            `json:"structure,omitempty"`
	LineCount      int               `json:"line_count,omitempty"`
	CharacterCount int               `json:"character_count,omitempty"`
	AnalysisError  string            `json:"analysis_error,omitempty"`
}

// Result merges file facts with content facts for one processed upload.
type Result struct {
	Filename     string `json:"filename"`
	SafeFilename string `json:"safe_filename"`
	Size         int64  `json:"size"`
	FileType     string `json:"file_type"`
	UploadPath   string `json:"upload_path"`
	UserID       string `json:"user_id"`
	Timestamp    string `json:"timestamp"`
	Analysis
}

// Analyzer validates and processes uploaded files.
type Analyzer struct {
	uploadDir   string
	maxFileSize int64
}

func NewAnalyzer(uploadDir string, maxFileSizeMB int) *Analyzer {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		slog.Error("Failed to create upload directory", "dir", uploadDir, "error", err)
	}
	slog.Info("Initialized upload analyzer", "dir", uploadDir, "maxFileSizeMB", maxFileSizeMB)
	return &Analyzer{
		uploadDir:   uploadDir,
		maxFileSize: int64(maxFileSizeMB) * 1024 * 1024,
	}
}

// ProcessUpload validates the file, analyzes its structure, and copies
// it to <uploadDir>/<userID>/<timestamp>_<name>. Validation failures
// (missing file, oversize, disallowed extension) abort the upload;
// analysis failures do not.
func (a *Analyzer) ProcessUpload(filePath, userID string) (Result, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("file not found: %s", filePath)
	}
	if info.Size() > a.maxFileSize {
		return Result{}, fmt.Errorf("file too large: %d bytes (max: %d)", info.Size(), a.maxFileSize)
	}

	fileName := filepath.Base(filePath)
	fileExt := strings.ToLower(filepath.Ext(filePath))
	if !allowedExtensions[fileExt] {
		return Result{}, fmt.Errorf("file type not allowed: %s", fileExt)
	}

	analysis := a.analyzeFile(filePath, fileExt)

	userDir := filepath.Join(a.uploadDir, sanitizeComponent(userID))
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create user upload directory: %w", err)
	}
	timestamp := time.Now().Format("20060102_150405")
	safeFilename := timestamp + "_" + fileName
	destPath := filepath.Join(userDir, safeFilename)
	if err := copyFile(filePath, destPath); err != nil {
		return Result{}, fmt.Errorf("failed to copy upload: %w", err)
	}

	slog.Info("Processed file upload", "file", fileName, "userId", userID)
	return Result{
		Filename:     fileName,
		SafeFilename: safeFilename,
		Size:         info.Size(),
		FileType:     fileExt,
		UploadPath:   destPath,
		UserID:       userID,
		Timestamp:    timestamp,
		Analysis:     analysis,
	}, nil
}

// analyzeFile dispatches to the format-specific sniffer. Any sniffer
// error degrades to an Analysis carrying analysis_error.
func (a *Analyzer) analyzeFile(filePath, fileExt string) Analysis {
	var (
		analysis Analysis
		err      error
	)
	switch fileExt {
	case ".csv":
		analysis, err = analyzeCSV(filePath)
	case ".xlsx", ".xls":
		analysis, err = analyzeExcel(filePath)
	case ".json":
		analysis, err = analyzeJSON(filePath)
	case ".parquet":
		analysis, err = analyzeParquet(filePath)
	case ".txt":
		analysis, err = analyzeText(filePath)
	default:
		return Analysis{Columns: []string{}}
	}
	if err != nil {
		slog.Warn("Error analyzing file", "path", filePath, "error", err)
		return Analysis{Columns: []string{}, AnalysisError: err.Error()}
	}
	return analysis
}

func analyzeCSV(filePath string) (Analysis, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return Analysis{}, fmt.Errorf("error analyzing CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Analysis{}, fmt.Errorf("error analyzing CSV: %w", err)
	}

	nullCounts := make(map[string]int, len(header))
	samples := make(map[string][]string, len(header))
	var sampleRows []map[string]string
	rowCount := 0
	for rowCount < sampleRowLimit {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Analysis{}, fmt.Errorf("error analyzing CSV: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			var val string
			if i < len(record) {
				val = record[i]
			}
			row[col] = val
			if strings.TrimSpace(val) == "" {
				nullCounts[col]++
			} else {
				samples[col] = append(samples[col], val)
			}
		}
		if rowCount < 5 {
			sampleRows = append(sampleRows, row)
		}
		rowCount++
	}

	dataTypes := make(map[string]string, len(header))
	for _, col := range header {
		dataTypes[col] = inferColumnType(samples[col])
	}
	return Analysis{
		Columns:    header,
		RowCount:   rowCount,
		DataTypes:  dataTypes,
		NullCounts: nullCounts,
		SampleData: sampleRows,
	}, nil
}

func analyzeExcel(filePath string) (Analysis, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return Analysis{}, fmt.Errorf("error analyzing Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Analysis{}, fmt.Errorf("error analyzing Excel: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Analysis{}, fmt.Errorf("error analyzing Excel: %w", err)
	}

	var columns []string
	if len(rows) > 0 {
		columns = rows[0]
	}
	dataRows := 0
	if len(rows) > 1 {
		dataRows = len(rows) - 1
		if dataRows > sampleRowLimit {
			dataRows = sampleRowLimit
		}
	}
	var sampleRows []map[string]string
	for i := 1; i < len(rows) && i <= 5; i++ {
		row := make(map[string]string, len(columns))
		for j, col := range columns {
			if j < len(rows[i]) {
				row[col] = rows[i][j]
			} else {
				row[col] = ""
			}
		}
		sampleRows = append(sampleRows, row)
	}
	return Analysis{
		Columns:     columns,
		RowCount:    dataRows,
		SheetNames:  sheets,
		ActiveSheet: sheets[0],
		SampleData:  sampleRows,
	}, nil
}

func analyzeJSON(filePath string) (Analysis, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Analysis{}, fmt.Errorf("error analyzing JSON: %w", err)
	}
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Analysis{}, fmt.Errorf("error analyzing JSON: %w", err)
	}

	switch v := parsed.(type) {
	case []any:
		columns := []string{}
		if len(v) > 0 {
			if first, ok := v[0].(map[string]any); ok {
				for key := range first {
					columns = append(columns, key)
				}
				sort.Strings(columns)
			}
		}
		sample := v
		if len(sample) > 5 {
			sample = sample[:5]
		}
		return Analysis{
			Columns:    columns,
			RowCount:   len(v),
			SampleData: sample,
			Structure:  "array_of_objects",
		}, nil
	case map[string]any:
		columns := make([]string, 0, len(v))
		for key := range v {
			columns = append(columns, key)
		}
		sort.Strings(columns)
		return Analysis{
			Columns:    columns,
			RowCount:   1,
			SampleData: v,
			Structure:  "single_object",
		}, nil
	default:
		return Analysis{
			Columns:    []string{},
			RowCount:   1,
			SampleData: v,
			Structure:  "primitive",
		}, nil
	}
}

func analyzeParquet(filePath string) (Analysis, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return Analysis{}, fmt.Errorf("error analyzing Parquet: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Analysis{}, fmt.Errorf("error analyzing Parquet: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return Analysis{}, fmt.Errorf("error analyzing Parquet: %w", err)
	}

	var columns []string
	dataTypes := make(map[string]string)
	for _, field := range pf.Schema().Fields() {
		columns = append(columns, field.Name())
		dataTypes[field.Name()] = field.Type().String()
	}
	return Analysis{
		Columns:   columns,
		RowCount:  int(pf.NumRows()),
		DataTypes: dataTypes,
	}, nil
}

func analyzeText(filePath string) (Analysis, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Analysis{}, fmt.Errorf("error analyzing text file: %w", err)
	}
	content := string(data)
	lines := strings.Split(content, "\n")
	sample := lines
	if len(sample) > 10 {
		sample = sample[:10]
	}
	return Analysis{
		Columns:        []string{"text"},
		RowCount:       len(lines),
		LineCount:      len(lines),
		CharacterCount: utf8.RuneCountInString(content),
		SampleData:     sample,
	}, nil
}

// inferColumnType classifies a sampled column as int, float, bool or
// string. Empty samples fall back to string.
func inferColumnType(values []string) string {
	if len(values) == 0 {
		return "string"
	}
	isInt, isFloat, isBool := true, true, true
	for _, v := range values {
		v = strings.TrimSpace(v)
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			isFloat = false
		}
		if _, err := strconv.ParseBool(v); err != nil {
			isBool = false
		}
	}
	switch {
	case isInt:
		return "int"
	case isFloat:
		return "float"
	case isBool:
		return "bool"
	default:
		return "string"
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// sanitizeComponent keeps user-derived path components from escaping
// the upload directory.
func sanitizeComponent(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}
