package loader

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"pricefeed/model"
)

func TestReadListingCSV(t *testing.T) {
	src := "FileName,Branch\n" +
		"PriceFull7290058108879-337-202507271024.gz,337 Center\n" +
		"broken-row\n" +
		"PromoFull7290058108879-337-202507271024.gz, 337 Center\n"

	entries, err := ReadListingCSV(strings.NewReader(src), "")

	require.NoError(t, err)
	assert.Equal(t, []model.FileEntry{
		{Filename: "PriceFull7290058108879-337-202507271024.gz", BranchToken: "337 Center"},
		{Filename: "PromoFull7290058108879-337-202507271024.gz", BranchToken: "337 Center"},
	}, entries)
}

func TestReadListingCSVLegacyEncoding(t *testing.T) {
	src := "PriceFull-1-202507271024.gz,1 סניף מרכז\n"
	encoded, _, err := transform.String(charmap.Windows1255.NewEncoder(), src)
	require.NoError(t, err)

	entries, err := ReadListingCSV(strings.NewReader(encoded), "windows-1255")

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1 סניף מרכז", entries[0].BranchToken)

	_, err = ReadListingCSV(strings.NewReader(encoded), "no-such-charset")
	assert.Error(t, err)
}

func TestLoadCatalogWithListing(t *testing.T) {
	dir := t.TempDir()
	listing := "PriceFull-337-202507260900.gz,337\nPriceFull-337-202507271024.gz,337\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chain1.csv"), []byte(listing), 0o644))

	catalog := `{
	  "chains": [
	    {
	      "code": "CHAIN_001",
	      "actualCode": "7290058108879",
	      "name": "Example Foods",
	      "url": "https://prices.example.test",
	      "branches": {"337": "Center"},
	      "files": [{"filename": "PromoFull-337-202507271024.gz", "branchToken": "337"}],
	      "listing": "chain1.csv"
	    },
	    {"name": "no code"}
	  ]
	}`
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o644))

	catalogs, err := LoadCatalog(path)

	require.NoError(t, err)
	require.Len(t, catalogs, 1)
	c := catalogs[0]
	assert.Equal(t, "CHAIN_001", c.Chain.Code)
	assert.Equal(t, "7290058108879", c.Chain.ActualCode)
	assert.Equal(t, "Center", c.BranchName("337"))
	assert.Equal(t, "Branch 12", c.BranchName("12"))
	require.Len(t, c.Files, 3)
	assert.Equal(t, "PromoFull-337-202507271024.gz", c.Files[0].Filename)
	assert.Equal(t, "PriceFull-337-202507271024.gz", c.Files[2].Filename)
}

func TestLoadCatalogMissingListing(t *testing.T) {
	_, err := ReadCatalog(strings.NewReader(`{"chains":[{"code":"C","listing":"nope.csv"}]}`), t.TempDir())
	assert.Error(t, err)
}

func TestReadCatalogWithinConfinesListings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chain1.csv"), []byte("PriceFull-1-202507271024.gz,1\n"), 0o644))
	outside := filepath.Join(t.TempDir(), "secret.csv")
	require.NoError(t, os.WriteFile(outside, []byte("a,b\n"), 0o644))

	catalogs, err := ReadCatalogWithin(strings.NewReader(`{"chains":[{"code":"C","listing":"chain1.csv"}]}`), dir)
	require.NoError(t, err)
	require.Len(t, catalogs[0].Files, 1)

	for _, listing := range []string{outside, "../secret.csv", "sub/../../secret.csv"} {
		doc := `{"chains":[{"code":"C","listing":` + strconv.Quote(listing) + `}]}`
		_, err := ReadCatalogWithin(strings.NewReader(doc), dir)
		assert.ErrorIs(t, err, ErrListingPath, listing)
	}

	// files read by the operator may still point anywhere
	catalogs, err = ReadCatalog(strings.NewReader(`{"chains":[{"code":"C","listing":`+strconv.Quote(outside)+`}]}`), dir)
	require.NoError(t, err)
	assert.Len(t, catalogs[0].Files, 1)
}
