// Package universe resolves the set of ticker symbols a pipeline run
// should process from one or more static source lists.
package universe

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// validSymbol matches a normalized ticker: letters, digits and the dash
// that replaces class/share separators.
var validSymbol = regexp.MustCompile(`^[A-Z0-9-]+$`)

// Normalize converts a raw list entry into canonical symbol form:
// trimmed, uppercased, with '^' and '.' separators mapped to '-'
// (BRK.B becomes BRK-B). Returns the empty string for entries that do
// not survive normalization.
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "^", "-")
	s = strings.ReplaceAll(s, ".", "-")
	if s == "" || !validSymbol.MatchString(s) {
		return ""
	}
	return s
}

// Resolve reads every source file plus the inline list and returns the
// normalized, de-duplicated universe in first-seen order. Files that do
// not exist are skipped; an empty combined result is an error because a
// run with no symbols indicates misconfiguration, not an empty market.
func Resolve(files []string, inline []string) ([]string, error) {
	var symbols []string
	seen := make(map[string]bool)

	add := func(raw string) {
		sym := Normalize(raw)
		if sym == "" || seen[sym] {
			return
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}

	for _, path := range files {
		raws, err := loadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read symbol list %s: %w", path, err)
		}
		for _, raw := range raws {
			add(raw)
		}
	}

	for _, raw := range inline {
		add(raw)
	}

	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols resolved from any source (files: %v, inline: %d)", files, len(inline))
	}

	return symbols, nil
}

// loadFile reads one source list. CSV files must carry a Symbol column;
// any other extension is treated as one symbol per line.
func loadFile(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return loadCSV(path)
	}
	return loadLines(path)
}

func loadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func loadCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := -1
	for i, name := range records[0] {
		if strings.EqualFold(strings.TrimSpace(name), "symbol") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("no Symbol column in header %v", records[0])
	}

	var out []string
	for _, rec := range records[1:] {
		if col < len(rec) {
			out = append(out, rec[col])
		}
	}
	return out, nil
}
