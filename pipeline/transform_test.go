package pipeline

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carsnbids-pipeline/models"
)

func TestExtractAuctionID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "token after auctions segment",
			url:  "https://carsandbids.com/auctions/9weAvWWn/2021-toyota-supra",
			want: "9weAvWWn",
		},
		{
			name: "trailing whitespace ignored",
			url:  "  https://carsandbids.com/auctions/abc123/slug  ",
			want: "abc123",
		},
		{
			name: "no auctions segment and too few parts",
			url:  "https://carsandbids.com/about",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractAuctionID(tt.url))
			// derivation is deterministic across repeated runs
			assert.Equal(t, extractAuctionID(tt.url), extractAuctionID(tt.url))
		})
	}
}

func TestTransform_SortAndDedup(t *testing.T) {
	flat := []models.FlatAuction{
		{
			AuctionURL:    "https://carsandbids.com/auctions/dup/2020-mazda-mx-5",
			AuctionDate:   lo.ToPtr("2023-05-01T10:00:00Z"),
			AuctionStatus: lo.ToPtr("Sold"),
			Seller:        lo.ToPtr("older listing"),
		},
		{
			AuctionURL:    "https://carsandbids.com/auctions/other/2019-bmw-m2",
			AuctionDate:   lo.ToPtr("2023-05-03T10:00:00Z"),
			AuctionStatus: lo.ToPtr("Sold"),
		},
		{
			AuctionURL:    "https://carsandbids.com/auctions/dup/2020-mazda-mx-5",
			AuctionDate:   lo.ToPtr("2023-05-02T10:00:00Z"),
			AuctionStatus: lo.ToPtr("Sold"),
			Seller:        lo.ToPtr("newer listing"),
		},
	}

	records := Transform(flat)

	require.Len(t, records, 2)
	// sorted descending by auction_date
	assert.Equal(t, "other", records[0].AuctionID)
	assert.Equal(t, "dup", records[1].AuctionID)
	// the most recent duplicate wins
	require.NotNil(t, records[1].Seller)
	assert.Equal(t, "newer listing", *records[1].Seller)
}

func TestTransform_DropsRecordsWithoutID(t *testing.T) {
	records := Transform([]models.FlatAuction{
		{AuctionURL: "https://carsandbids.com/nothing-here"},
	})
	assert.Empty(t, records)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, lo.ToPtr("MX-5 Miata"), firstLine(lo.ToPtr("MX-5 Miata\nSave")))
	assert.Equal(t, lo.ToPtr("MX-5 Miata"), firstLine(lo.ToPtr("  MX-5 Miata  ")))
	assert.Nil(t, firstLine(nil))
}

func TestParseMileage(t *testing.T) {
	tests := []struct {
		name  string
		input *string
		want  *int64
	}{
		{"comma separated miles", lo.ToPtr("23,500 miles"), lo.ToPtr(int64(23500))},
		{"bare digits", lo.ToPtr("800"), lo.ToPtr(int64(800))},
		{"no digits", lo.ToPtr("TMU"), nil},
		{"nil input", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseMileage(tt.input))
		})
	}
}

func TestParseCurrencyFloat(t *testing.T) {
	assert.Equal(t, lo.ToPtr(45250.0), parseCurrencyFloat(lo.ToPtr("$45,250")))
	assert.Equal(t, lo.ToPtr(999.5), parseCurrencyFloat(lo.ToPtr("999.5")))
	assert.Nil(t, parseCurrencyFloat(lo.ToPtr("n/a")))
	assert.Nil(t, parseCurrencyFloat(nil))
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name        string
		input       *string
		wantStatus  *string
		wantReserve bool
	}{
		{"sold to winner collapses", lo.ToPtr("Sold to JaneDoe"), lo.ToPtr("Sold"), true},
		{"reserve not met with bid collapses", lo.ToPtr("Reserve not met, bid to $31,000"), lo.ToPtr("Reserve not met"), false},
		{"plain sold meets reserve case insensitively", lo.ToPtr("sold"), lo.ToPtr("sold"), true},
		{"cancelled stays as is", lo.ToPtr("Cancelled"), lo.ToPtr("Cancelled"), false},
		{"nil stays nil", nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reserveMet := normalizeStatus(tt.input)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantReserve, reserveMet)
		})
	}
}

func TestCleanBids(t *testing.T) {
	t.Run("currency stripped integers", func(t *testing.T) {
		bids := cleanBids([]any{"$100", "$1,250", "300"})
		assert.Equal(t, []int64{100, 1250, 300}, bids)
	})

	t.Run("one bad element discards the whole list", func(t *testing.T) {
		bids := cleanBids([]any{"$100", "oops", "$300"})
		assert.Equal(t, []int64{}, bids)
	})

	t.Run("non string element discards the whole list", func(t *testing.T) {
		bids := cleanBids([]any{"$100", float64(200)})
		assert.Equal(t, []int64{}, bids)
	})

	t.Run("nil input yields empty list", func(t *testing.T) {
		assert.Equal(t, []int64{}, cleanBids(nil))
	})
}

func TestFillBidFeatures(t *testing.T) {
	t.Run("three bids", func(t *testing.T) {
		record := models.CanonicalAuction{Bids: []int64{100, 250, 300}}
		fillBidFeatures(&record)

		require.NotNil(t, record.MaxBid)
		assert.Equal(t, 300.0, *record.MaxBid)
		assert.Equal(t, 100.0, *record.MinBid)
		assert.InDelta(t, 216.6667, *record.MeanBid, 0.001)
		assert.Equal(t, 250.0, *record.MedianBid)
		assert.Equal(t, 200.0, *record.BidRange)
	})

	t.Run("even count uses middle pair median", func(t *testing.T) {
		record := models.CanonicalAuction{Bids: []int64{100, 200, 300, 400}}
		fillBidFeatures(&record)
		require.NotNil(t, record.MedianBid)
		assert.Equal(t, 250.0, *record.MedianBid)
	})

	for _, bids := range [][]int64{{100}, {}} {
		record := models.CanonicalAuction{Bids: bids}
		fillBidFeatures(&record)
		assert.Nil(t, record.MaxBid)
		assert.Nil(t, record.MinBid)
		assert.Nil(t, record.MeanBid)
		assert.Nil(t, record.MedianBid)
		assert.Nil(t, record.BidRange)
	}
}

func TestSplitTitleStatus(t *testing.T) {
	t.Run("status with state code", func(t *testing.T) {
		cleaned, state := splitTitleStatus(lo.ToPtr("Clean (CA)"))
		assert.Equal(t, lo.ToPtr("Clean"), cleaned)
		assert.Equal(t, lo.ToPtr("CA"), state)
	})

	t.Run("no parenthetical", func(t *testing.T) {
		cleaned, state := splitTitleStatus(lo.ToPtr("Salvage"))
		assert.Nil(t, cleaned)
		assert.Nil(t, state)
	})

	t.Run("nil input", func(t *testing.T) {
		cleaned, state := splitTitleStatus(nil)
		assert.Nil(t, cleaned)
		assert.Nil(t, state)
	})
}

func TestSplitLocation(t *testing.T) {
	tests := []struct {
		name     string
		input    *string
		wantCity *string
		wantST   *string
	}{
		{"city and state", lo.ToPtr("Austin, TX"), lo.ToPtr("Austin"), lo.ToPtr("TX")},
		{"state with zip keeps first token", lo.ToPtr("San Jose, CA 95125"), lo.ToPtr("San Jose"), lo.ToPtr("CA")},
		{"no comma", lo.ToPtr("Austin"), lo.ToPtr("Austin"), nil},
		{"last comma wins", lo.ToPtr("Salt Lake City, Utah, UT"), lo.ToPtr("Salt Lake City, Utah"), lo.ToPtr("UT")},
		{"nil input", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			city, state := splitLocation(tt.input)
			assert.Equal(t, tt.wantCity, city)
			assert.Equal(t, tt.wantST, state)
		})
	}
}

func TestClassifyTransmission(t *testing.T) {
	tests := []struct {
		name      string
		input     *string
		wantType  *string
		wantGears *int64
	}{
		{"manual with gears", lo.ToPtr("6-Speed Manual"), lo.ToPtr("Manual"), lo.ToPtr(int64(6))},
		{"automatic with gears", lo.ToPtr("Automatic (8-Speed)"), lo.ToPtr("Automatic"), lo.ToPtr(int64(8))},
		{"manual beats automatic cue", lo.ToPtr("Automated Manual"), lo.ToPtr("Manual"), nil},
		{"neither cue", lo.ToPtr("Sequential"), lo.ToPtr("Other"), nil},
		{"empty input", lo.ToPtr(""), nil, nil},
		{"nil input", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transmissionType, gears := classifyTransmission(tt.input)
			assert.Equal(t, tt.wantType, transmissionType)
			assert.Equal(t, tt.wantGears, gears)
		})
	}
}

func TestClassifyDrivetrain(t *testing.T) {
	tests := []struct {
		name  string
		input *string
		want  string
	}{
		{"both cues take combined class", lo.ToPtr("4WD/AWD selectable"), "4WD/AWD"},
		{"front wheel", lo.ToPtr("Front-wheel drive"), "FWD"},
		{"rear wheel", lo.ToPtr("Rear-wheel drive"), "RWD"},
		{"awd", lo.ToPtr("AWD"), "AWD"},
		{"all wheel spelled out", lo.ToPtr("All-wheel drive"), "AWD"},
		{"four wheel spelled out", lo.ToPtr("Four-wheel drive"), "4WD"},
		{"4wd", lo.ToPtr("4WD with low range"), "4WD"},
		{"unknown", lo.ToPtr("tank treads"), "Other"},
		{"empty", lo.ToPtr(""), "Other"},
		{"nil", nil, "Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyDrivetrain(tt.input))
		})
	}
}

func TestCountFields(t *testing.T) {
	flat := models.FlatAuction{
		AuctionURL:    "https://carsandbids.com/auctions/abc/2021-toyota-supra",
		AuctionDate:   lo.ToPtr("2023-05-01T10:00:00Z"),
		AuctionStatus: lo.ToPtr("Sold"),
		Highlights:    []any{"one", "two"},
		KnownFlaws:    []any{},
		// Modifications left absent
	}

	records := Transform([]models.FlatAuction{flat})
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, lo.ToPtr(int64(2)), record.HighlightCount)
	assert.Equal(t, lo.ToPtr(int64(0)), record.FlawCount, "empty list counts as zero")
	assert.Nil(t, record.ModCount, "absent list field counts as null")
}

func TestParseManufactureYear(t *testing.T) {
	assert.Equal(t, lo.ToPtr(int64(2021)), parseManufactureYear("https://carsandbids.com/auctions/abc/2021-toyota-supra"))
	assert.Nil(t, parseManufactureYear("https://carsandbids.com/auctions/abc/no-year-slug"))
	assert.Nil(t, parseManufactureYear(""))
}

func TestParseAuctionDate(t *testing.T) {
	t.Run("rfc3339 normalized to utc", func(t *testing.T) {
		parsed := parseAuctionDate(lo.ToPtr("2023-05-01T10:00:00-05:00"))
		require.NotNil(t, parsed)
		assert.Equal(t, time.Date(2023, 5, 1, 15, 0, 0, 0, time.UTC), *parsed)
	})

	t.Run("date only", func(t *testing.T) {
		parsed := parseAuctionDate(lo.ToPtr("2023-05-01"))
		require.NotNil(t, parsed)
		assert.Equal(t, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), *parsed)
	})

	t.Run("garbage stays nil", func(t *testing.T) {
		assert.Nil(t, parseAuctionDate(lo.ToPtr("next tuesday")))
		assert.Nil(t, parseAuctionDate(nil))
	})
}

func TestCoerceCounts(t *testing.T) {
	assert.Equal(t, int64(1234), coerceCount("1,234"))
	assert.Equal(t, int64(87), coerceCount(float64(87)))
	assert.Equal(t, int64(0), coerceCount("watchers"))
	assert.Equal(t, int64(0), coerceCount(nil))

	assert.Equal(t, lo.ToPtr(int64(42)), coerceNullableInt(float64(42)))
	assert.Equal(t, lo.ToPtr(int64(42)), coerceNullableInt("42"))
	assert.Nil(t, coerceNullableInt("1,234"), "thousands separators do not coerce")
	assert.Nil(t, coerceNullableInt(nil))
}
