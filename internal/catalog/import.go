// Package catalog parses product catalog uploads.
package catalog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"tagpos/backend/internal/domain"
)

var (
	ErrUnmappedColumn = errors.New("mapped column not found in header")
	ErrMissingHeader  = errors.New("csv has no header row")
	ErrMalformedCSV   = errors.New("csv header is unreadable")
)

// Mapping names the header columns holding tag, name and price.
type Mapping struct {
	IDColumn    string
	NameColumn  string
	PriceColumn string
}

func DefaultMapping() Mapping {
	return Mapping{IDColumn: "id", NameColumn: "name", PriceColumn: "price"}
}

// WithDefaults fills blank columns from DefaultMapping.
func (m Mapping) WithDefaults() Mapping {
	def := DefaultMapping()
	if strings.TrimSpace(m.IDColumn) == "" {
		m.IDColumn = def.IDColumn
	}
	if strings.TrimSpace(m.NameColumn) == "" {
		m.NameColumn = def.NameColumn
	}
	if strings.TrimSpace(m.PriceColumn) == "" {
		m.PriceColumn = def.PriceColumn
	}
	return m
}

type Result struct {
	Entries []domain.CatalogEntry
	Skipped int
}

// Parse reads a CSV catalog. Header names match case-insensitively. Rows
// without a tag or name, with an unparsable or negative price, or that the
// CSV reader rejects are skipped and counted.
func Parse(r io.Reader, mapping Mapping) (Result, error) {
	mapping = mapping.WithDefaults()

	buffered := bufio.NewReader(r)
	if bom, err := buffered.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = buffered.Discard(3)
	}

	reader := csv.NewReader(buffered)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, ErrMissingHeader
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedCSV, err)
	}
	for _, column := range header {
		if !utf8.ValidString(column) {
			return Result{}, fmt.Errorf("%w: header is not UTF-8 text", ErrMalformedCSV)
		}
	}

	idIdx, err := columnIndex(header, mapping.IDColumn)
	if err != nil {
		return Result{}, err
	}
	nameIdx, err := columnIndex(header, mapping.NameColumn)
	if err != nil {
		return Result{}, err
	}
	priceIdx, err := columnIndex(header, mapping.PriceColumn)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Skipped++
				continue
			}
			return Result{}, fmt.Errorf("read row: %w", err)
		}
		if isBlank(record) {
			continue
		}

		entry, ok := parseRow(record, idIdx, nameIdx, priceIdx)
		if !ok {
			result.Skipped++
			continue
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

func parseRow(record []string, idIdx, nameIdx, priceIdx int) (domain.CatalogEntry, bool) {
	tag := field(record, idIdx)
	name := field(record, nameIdx)
	if tag == "" || name == "" {
		return domain.CatalogEntry{}, false
	}
	price, err := ParsePrice(field(record, priceIdx))
	if err != nil {
		return domain.CatalogEntry{}, false
	}
	return domain.CatalogEntry{Tag: tag, Name: name, UnitPrice: price}, true
}

// ParsePrice accepts plain decimals with optional thousands separators.
func ParsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("empty price")
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative price %s", raw)
	}
	return price, nil
}

func columnIndex(header []string, column string) (int, error) {
	want := strings.ToLower(strings.TrimSpace(column))
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnmappedColumn, column)
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
