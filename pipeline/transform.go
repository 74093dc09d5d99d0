package pipeline

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"carsnbids-pipeline/models"
)

var (
	// integerRunRegexp captures the first digit run, commas allowed
	integerRunRegexp = regexp.MustCompile(`[\d,]+`)
	// gearsRegexp captures the gear count in e.g. "6-speed manual"
	gearsRegexp = regexp.MustCompile(`(\d+)-speed`)
	// titleStatusCleanRegexp captures the status text before a parenthetical
	titleStatusCleanRegexp = regexp.MustCompile(`^(.*?) \(`)
	// titleStateRegexp captures the state code inside the parenthetical
	titleStateRegexp = regexp.MustCompile(`\((.*?)\)`)
)

// auctionDateLayouts are tried in order; the first match wins and the
// result is normalized to UTC.
var auctionDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Transform turns a validity-filtered batch into canonical records. The
// batch comes out sorted by auction_date descending with at most one
// record per auction_id (most recent wins). Field-level parse failures
// degrade to null or a default; nothing here aborts the batch.
func Transform(valid []models.FlatAuction) []models.CanonicalAuction {
	records := make([]models.CanonicalAuction, 0, len(valid))
	for _, flat := range valid {
		record := transformRecord(flat)
		if record.AuctionID == "" {
			slog.Warn("Drop record without derivable auction id", slog.String("url", flat.AuctionURL))
			continue
		}
		records = append(records, record)
	}

	// descending by auction_date, unparseable dates last; the stable sort
	// keeps batch order on ties, which the dedup below relies on
	sort.SliceStable(records, func(i, j int) bool {
		left, right := records[i].AuctionDate, records[j].AuctionDate
		if left == nil {
			return false
		}
		if right == nil {
			return true
		}
		return left.After(*right)
	})

	return lo.UniqBy(records, func(record models.CanonicalAuction) string {
		return record.AuctionID
	})
}

func transformRecord(flat models.FlatAuction) models.CanonicalAuction {
	record := models.CanonicalAuction{
		AuctionURL:      flat.AuctionURL,
		AuctionTitle:    flat.AuctionTitle,
		AuctionSubtitle: flat.AuctionSubtitle,
		DougsTake:       flat.DougsTake,

		Make:       flat.Make,
		SellerType: flat.SellerType,
		BodyStyle:  flat.BodyStyle,
		Engine:     flat.Engine,

		TitleStatus:  flat.TitleStatus,
		Location:     flat.Location,
		Transmission: flat.Transmission,

		Highlights:       flat.Highlights,
		Services:         flat.Services,
		Equipment:        flat.Equipment,
		Modifications:    flat.Modifications,
		KnownFlaws:       flat.KnownFlaws,
		IncludedItems:    flat.IncludedItems,
		OwnershipHistory: flat.OwnershipHistory,
		SellerNotes:      flat.SellerNotes,
		Videos:           flat.Videos,
	}

	record.AuctionID = extractAuctionID(flat.AuctionURL)
	record.AuctionDate = parseAuctionDate(flat.AuctionDate)

	record.Model = firstLine(flat.Model)
	record.Seller = firstLine(flat.Seller)
	record.Mileage = parseMileage(flat.Mileage)
	record.HighestBidValue = parseCurrencyFloat(flat.HighestBidValue)
	record.BidCount = coerceNullableInt(flat.BidCount)
	record.ViewCount = coerceCount(flat.ViewCount)
	record.WatcherCount = coerceCount(flat.WatcherCount)
	record.AuctionStatus, record.ReserveMet = normalizeStatus(flat.AuctionStatus)
	record.Bids = cleanBids(flat.Bids)
	record.TitleStatusCleaned, record.TitleState = splitTitleStatus(flat.TitleStatus)
	record.City, record.State = splitLocation(flat.Location)
	record.TransmissionType, record.Gears = classifyTransmission(flat.Transmission)
	record.Drivetrain = classifyDrivetrain(flat.Drivetrain)

	fillBidFeatures(&record)

	record.HighlightCount = countList(flat.Highlights)
	record.EquipmentCount = countList(flat.Equipment)
	record.ModCount = countList(flat.Modifications)
	record.FlawCount = countList(flat.KnownFlaws)
	record.ServiceCount = countList(flat.Services)
	record.IncludedItemsCount = countList(flat.IncludedItems)
	record.VideoCount = countList(flat.Videos)

	record.ManufactureYear = parseManufactureYear(flat.AuctionURL)

	return record
}

// extractAuctionID returns the URL path token following the "auctions"
// segment. Persisted identifiers were all derived this way; changing the
// extraction would orphan every stored partition.
func extractAuctionID(rawURL string) string {
	parts := strings.Split(strings.TrimSpace(rawURL), "/")
	for i, part := range parts {
		if part == "auctions" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	if len(parts) > 4 {
		return parts[4]
	}
	return ""
}

func parseAuctionDate(value *string) *time.Time {
	if value == nil {
		return nil
	}
	raw := strings.TrimSpace(*value)
	for _, layout := range auctionDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}

// firstLine strips the multiline suffix the scraper leaves on model and
// seller cells (the text after the first newline is UI chrome).
func firstLine(value *string) *string {
	if value == nil {
		return nil
	}
	line := strings.TrimSpace(strings.SplitN(*value, "\n", 2)[0])
	return &line
}

func parseMileage(value *string) *int64 {
	if value == nil {
		return nil
	}
	match := integerRunRegexp.FindString(*value)
	if match == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(strings.ReplaceAll(match, ",", ""), 10, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseCurrencyFloat(value *string) *float64 {
	if value == nil {
		return nil
	}
	cleaned := strings.ReplaceAll(strings.ReplaceAll(*value, "$", ""), ",", "")
	parsed, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func coerceNullableInt(value any) *int64 {
	switch v := value.(type) {
	case float64:
		n := int64(v)
		return &n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		n := int64(parsed)
		return &n
	default:
		return nil
	}
}

// coerceCount parses a count that may arrive as a number or a
// thousands-separated string; absent or unparseable values become 0.
func coerceCount(value any) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		return int64(parsed)
	default:
		return 0
	}
}

// normalizeStatus collapses the winner/bid suffixes ("Sold to Jane",
// "Reserve not met, bid to $31,000") onto the bare status, and reports
// whether the reserve was met (status is exactly "Sold", case folded).
func normalizeStatus(value *string) (*string, bool) {
	if value == nil {
		return nil, false
	}
	status := strings.TrimSpace(*value)
	folded := strings.ToLower(status)
	switch {
	case strings.HasPrefix(folded, "sold to"):
		status = "Sold"
	case strings.HasPrefix(folded, "reserve not met, bid to"):
		status = "Reserve not met"
	}
	return &status, strings.EqualFold(status, "sold")
}

// cleanBids parses the chronological bid amounts. One element that fails
// to parse discards the whole list for that record; downstream consumers
// rely on bid histories being either complete or absent.
func cleanBids(raw []any) []int64 {
	bids := make([]int64, 0, len(raw))
	for _, element := range raw {
		text, ok := element.(string)
		if !ok {
			return []int64{}
		}
		cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(text, "$", ""), ",", ""))
		amount, err := strconv.ParseInt(cleaned, 10, 64)
		if err != nil {
			return []int64{}
		}
		bids = append(bids, amount)
	}
	return bids
}

func splitTitleStatus(value *string) (*string, *string) {
	if value == nil {
		return nil, nil
	}
	var cleaned, state *string
	if match := titleStatusCleanRegexp.FindStringSubmatch(*value); match != nil {
		cleaned = &match[1]
	}
	if match := titleStateRegexp.FindStringSubmatch(*value); match != nil {
		state = &match[1]
	}
	return cleaned, state
}

// splitLocation splits "Austin, TX 78701" on the last comma into the city
// and the first token after it. No comma means the whole string is the
// city.
func splitLocation(value *string) (*string, *string) {
	if value == nil {
		return nil, nil
	}
	idx := strings.LastIndex(*value, ",")
	if idx < 0 {
		city := strings.TrimSpace(*value)
		return &city, nil
	}
	city := strings.TrimSpace((*value)[:idx])
	var state *string
	if fields := strings.Fields((*value)[idx+1:]); len(fields) > 0 {
		state = &fields[0]
	}
	return &city, state
}

func classifyTransmission(value *string) (*string, *int64) {
	if value == nil || *value == "" {
		return nil, nil
	}
	folded := strings.ToLower(*value)

	transmissionType := "Other"
	if strings.Contains(folded, "manual") {
		transmissionType = "Manual"
	} else if strings.Contains(folded, "auto") {
		transmissionType = "Automatic"
	}

	var gears *int64
	if match := gearsRegexp.FindStringSubmatch(folded); match != nil {
		if parsed, err := strconv.ParseInt(match[1], 10, 64); err == nil {
			gears = &parsed
		}
	}
	return &transmissionType, gears
}

// classifyDrivetrain runs ordered, mutually exclusive substring checks.
// The combined 4WD/AWD case must be tested first; texts like
// "4WD/AWD selectable" carry both cues.
func classifyDrivetrain(value *string) string {
	if value == nil || *value == "" {
		return "Other"
	}
	folded := strings.ToLower(*value)
	switch {
	case strings.Contains(folded, "4wd") && strings.Contains(folded, "awd"):
		return "4WD/AWD"
	case strings.Contains(folded, "front"):
		return "FWD"
	case strings.Contains(folded, "rear"):
		return "RWD"
	case strings.Contains(folded, "awd"), strings.Contains(folded, "all-wheel"):
		return "AWD"
	case strings.Contains(folded, "4wd"), strings.Contains(folded, "four-wheel"):
		return "4WD"
	default:
		return "Other"
	}
}

// fillBidFeatures derives the five bid statistics. Fewer than two bids
// leaves them all null.
func fillBidFeatures(record *models.CanonicalAuction) {
	if len(record.Bids) < 2 {
		return
	}

	maxBid := float64(record.Bids[0])
	minBid := float64(record.Bids[0])
	var sum float64
	for _, bid := range record.Bids {
		amount := float64(bid)
		sum += amount
		if amount > maxBid {
			maxBid = amount
		}
		if amount < minBid {
			minBid = amount
		}
	}
	mean := sum / float64(len(record.Bids))

	sorted := make([]int64, len(record.Bids))
	copy(sorted, record.Bids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (float64(sorted[mid-1]) + float64(sorted[mid])) / 2
	} else {
		median = float64(sorted[mid])
	}

	bidRange := maxBid - minBid
	record.MaxBid = &maxBid
	record.MinBid = &minBid
	record.MeanBid = &mean
	record.MedianBid = &median
	record.BidRange = &bidRange
}

// countList reports the length of a list field, or null when the source
// never carried a proper list. Absent and empty are distinct.
func countList(list []any) *int64 {
	if list == nil {
		return nil
	}
	count := int64(len(list))
	return &count
}

func parseManufactureYear(rawURL string) *int64 {
	parts := strings.Split(strings.TrimSpace(rawURL), "/")
	if len(parts) == 0 {
		return nil
	}
	slug := parts[len(parts)-1]
	yearToken := strings.SplitN(slug, "-", 2)[0]
	year, err := strconv.ParseInt(yearToken, 10, 64)
	if err != nil {
		return nil
	}
	return &year
}
