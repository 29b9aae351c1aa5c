package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricefeed/model"
)

func TestResolvePicksLatestPerBranchAndType(t *testing.T) {
	entries := []model.FileEntry{
		{Filename: "PriceFull7290058108879-001-202507271024.gz", BranchToken: "1 X"},
		{Filename: "PriceFull7290058108879-001-202507260900.gz", BranchToken: "1 X"},
		{Filename: "PromoFull7290058108879-001-202507250800.gz", BranchToken: "1 X"},
		{Filename: "PromoFull7290058108879-001-202507261300.gz", BranchToken: "1 X"},
	}

	got := Resolve(entries)

	require.Contains(t, got, "1")
	assert.Equal(t, "PriceFull7290058108879-001-202507271024.gz", got["1"].Price.Filename)
	assert.Equal(t, "202507271024", got["1"].Price.FeedDate)
	assert.Equal(t, model.FileFound, got["1"].Price.Status)
	assert.Equal(t, "202507261300", got["1"].Promo.FeedDate)
}

func TestResolveIsOrderIndependentForDistinctDates(t *testing.T) {
	a := model.FileEntry{Filename: "PriceFull-337-202507260900.gz", BranchToken: "337 Jaffa"}
	b := model.FileEntry{Filename: "PriceFull-337-202507271024.gz", BranchToken: "337 Jaffa"}
	c := model.FileEntry{Filename: "PriceFull-337-202412312359.gz", BranchToken: "337"}

	orders := [][]model.FileEntry{{a, b, c}, {c, b, a}, {b, c, a}}
	for _, entries := range orders {
		got := Resolve(entries)
		assert.Equal(t, "202507271024", got["337"].Price.FeedDate)
	}
}

func TestResolveTieKeepsFirstSeen(t *testing.T) {
	entries := []model.FileEntry{
		{Filename: "PriceFull-A-202507271024.gz", BranchToken: "7"},
		{Filename: "PriceFull-B-202507271024.gz", BranchToken: "7"},
	}
	assert.Equal(t, "PriceFull-A-202507271024.gz", Resolve(entries)["7"].Price.Filename)
}

func TestResolveUndatedEntryAlwaysLoses(t *testing.T) {
	entries := []model.FileEntry{
		{Filename: "PriceFull-undated.gz", BranchToken: "2"},
		{Filename: "PriceFull-2-202501010000.gz", BranchToken: "2"},
		{Filename: "PromoFull-undated.gz", BranchToken: "2"},
	}

	got := Resolve(entries)

	assert.Equal(t, "PriceFull-2-202501010000.gz", got["2"].Price.Filename)
	// the only promo row has no date but is still kept
	assert.Equal(t, "PromoFull-undated.gz", got["2"].Promo.Filename)
	assert.Equal(t, "", got["2"].Promo.FeedDate)
}

func TestResolveSkipsUnknownAndMalformedRows(t *testing.T) {
	entries := []model.FileEntry{
		{Filename: "Stores7290058108879-202507271024.xml", BranchToken: "1"},
		{Filename: "Price7290058108879-001-202507271024.gz", BranchToken: "1"},
		{Filename: "", BranchToken: "1"},
		{Filename: "PriceFull-3-202507271024.gz", BranchToken: "   "},
		{Filename: "PriceFull-4-202507271024.gz", BranchToken: "4 Haifa"},
	}

	got := Resolve(entries)

	require.Len(t, got, 1)
	assert.True(t, got["4"].Price.Found())
	assert.False(t, got["4"].Promo.Found())
	assert.Equal(t, model.FileMissing, got["4"].Promo.Status)
}

func TestFeedDate(t *testing.T) {
	cases := map[string]string{
		"PriceFull7290058108879-001-202507271024.gz":     "202507271024",
		"PromoFull7290058108879-001-202507271024.xml.gz": "202507271024",
		"PriceFull7290058108879-001-202507271024.zip":    "202507271024",
		"PriceFull7290058108879-001-2025072710.gz":       "",
		"PriceFull7290058108879-001-202507271024":        "",
	}
	for name, want := range cases {
		assert.Equal(t, want, FeedDate(name), name)
	}
}

func TestBranchCode(t *testing.T) {
	assert.Equal(t, "339", BranchCode("339 יפו תלאביב מכללה"))
	assert.Equal(t, "50", BranchCode("  50\tNazareth"))
	assert.Equal(t, "12", BranchCode("12"))
	assert.Equal(t, "", BranchCode(" "))
}

func TestFeedDateRejectsLongerDigitRuns(t *testing.T) {
	assert.Equal(t, "", FeedDate("PriceFull7290058108879.gz"))
}
