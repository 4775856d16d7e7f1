package catalog

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	result, err := Parse(strings.NewReader("id,name,price\n001,Shirt,499\n"), DefaultMapping())
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)

	entry := result.Entries[0]
	assert.Equal(t, "001", entry.Tag)
	assert.Equal(t, "Shirt", entry.Name)
	assert.True(t, entry.UnitPrice.Equal(decimal.NewFromInt(499)))
	assert.Zero(t, result.Skipped)
}

func TestParseCustomMappingIsCaseInsensitive(t *testing.T) {
	csv := "\xEF\xBB\xBFSKU , Product Name,MRP,Color\n" +
		"A1,Scarf,\"1,250.50\",red\n" +
		"A2,Belt,300,brown\n"

	result, err := Parse(strings.NewReader(csv), Mapping{IDColumn: "sku", NameColumn: "product name", PriceColumn: "mrp"})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "A1", result.Entries[0].Tag)
	assert.True(t, result.Entries[0].UnitPrice.Equal(decimal.RequireFromString("1250.50")))
}

func TestParseSkipsBadRows(t *testing.T) {
	csv := strings.Join([]string{
		"id,name,price",
		"001,Shirt,499",
		",Nameless,10",
		"003,,10",
		"004,Cap,free",
		"005,Refund,-5",
		"",
		"006,Socks",
		"007,Hat,99",
	}, "\n")

	result, err := Parse(strings.NewReader(csv), DefaultMapping())
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "001", result.Entries[0].Tag)
	assert.Equal(t, "007", result.Entries[1].Tag)
	assert.Equal(t, 5, result.Skipped)
}

func TestParseUnmappedColumn(t *testing.T) {
	_, err := Parse(strings.NewReader("tag,title,price\n001,Shirt,499\n"), DefaultMapping())
	assert.ErrorIs(t, err, ErrUnmappedColumn)
}

func TestParseEmptyInput(t *testing.T) {
	_, err := Parse(strings.NewReader(""), DefaultMapping())
	assert.ErrorIs(t, err, ErrMissingHeader)
}

func TestParseUnreadableHeader(t *testing.T) {
	utf16 := "\xff\xfei\x00d\x00,\x00n\x00a\x00m\x00e\x00\n"
	_, err := Parse(strings.NewReader(utf16), DefaultMapping())
	assert.ErrorIs(t, err, ErrMalformedCSV)

	broken := errors.New("connection reset")
	_, err = Parse(iotest.ErrReader(broken), DefaultMapping())
	assert.ErrorIs(t, err, ErrMalformedCSV)
	assert.ErrorIs(t, err, broken)
}
