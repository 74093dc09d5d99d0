package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"carsnbids-pipeline/models"
)

// ErrInputShape marks a raw payload that is neither a mapping of
// url -> record nor a list of records. It aborts the whole invocation.
var ErrInputShape = errors.New("raw payload must be a mapping or a list of auction records")

// FlattenJSON decodes a raw object body and flattens it. A payload that
// does not decode, or decodes to an unsupported container shape, fails
// with ErrInputShape.
func FlattenJSON(raw []byte) ([]models.FlatAuction, error) {
	const op = "FlattenJSON"
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode raw payload, err=%w", op, errors.Join(ErrInputShape, err))
	}
	return Flatten(payload)
}

// Flatten normalizes the two accepted container shapes into one list of
// uniform records. Early raw files were saved as url-keyed mappings, later
// ones as bare lists; both flatten to the same shape, one output record
// per input record.
func Flatten(data any) ([]models.FlatAuction, error) {
	const op = "Flatten"
	switch container := data.(type) {
	case map[string]any:
		// iterate in sorted key order so repeated runs see the same batch order
		urls := make([]string, 0, len(container))
		for url := range container {
			urls = append(urls, url)
		}
		sort.Strings(urls)

		records := make([]models.FlatAuction, 0, len(container))
		for _, url := range urls {
			record, _ := container[url].(map[string]any)
			records = append(records, flattenRecord(record, url))
		}
		return records, nil
	case []any:
		records := make([]models.FlatAuction, 0, len(container))
		for _, item := range container {
			record, _ := item.(map[string]any)
			records = append(records, flattenRecord(record, ""))
		}
		return records, nil
	default:
		return nil, fmt.Errorf("[%s] %w", op, ErrInputShape)
	}
}

// flattenRecord merges the quick-facts and stats sub-objects into the top
// level and pulls every recognized field into the typed shape. For the
// url-keyed container shape the key wins over any auction_url field.
func flattenRecord(record map[string]any, url string) models.FlatAuction {
	merged := map[string]any{}
	if quickFacts, ok := record["auction_quick_facts"].(map[string]any); ok {
		for key, value := range quickFacts {
			merged[normalizeKey(key)] = value
		}
	}
	if stats, ok := record["auction_stats"].(map[string]any); ok {
		for key, value := range stats {
			merged[normalizeKey(key)] = value
		}
	}
	if _, ok := merged["view_count"]; !ok {
		merged["view_count"] = float64(0)
	}
	if _, ok := merged["watcher_count"]; !ok {
		merged["watcher_count"] = float64(0)
	}

	flat := models.FlatAuction{
		AuctionURL:      url,
		AuctionTitle:    asString(record["auction_title"]),
		AuctionSubtitle: asString(record["auction_subtitle"]),
		DougsTake:       asString(record["dougs_take"]),

		Make:        asString(merged["make"]),
		Model:       asString(merged["model"]),
		Seller:      asString(merged["seller"]),
		SellerType:  asString(merged["seller_type"]),
		BodyStyle:   asString(merged["body_style"]),
		Engine:      asString(merged["engine"]),
		Mileage:     asString(merged["mileage"]),
		TitleStatus: asString(merged["title_status"]),
		Location:    asString(merged["location"]),

		Transmission: asString(merged["transmission"]),
		Drivetrain:   asString(merged["drivetrain"]),

		AuctionDate:     asString(merged["auction_date"]),
		AuctionStatus:   asString(merged["auction_status"]),
		HighestBidValue: asString(merged["highest_bid_value"]),
		BidCount:        merged["bid_count"],
		ViewCount:       merged["view_count"],
		WatcherCount:    merged["watcher_count"],

		Bids: asList(merged["bids"]),

		Highlights: extractListField(record["auction_highlights"], "bullet_points"),
		Services:   extractListField(firstPresent(record, "services", "service_history"), "items"),

		Equipment:        asList(record["auction_equipment"]),
		Modifications:    asList(record["modifications"]),
		KnownFlaws:       asList(record["known_flaws"]),
		IncludedItems:    asList(record["included_items"]),
		OwnershipHistory: asList(record["ownership_history"]),
		SellerNotes:      asList(record["seller_notes"]),
	}

	if _, present := record["auction_videos"]; present {
		flat.Videos = asList(record["auction_videos"])
	} else {
		flat.Videos = []any{}
	}

	if flat.AuctionURL == "" {
		if recordURL := asString(record["auction_url"]); recordURL != nil {
			flat.AuctionURL = *recordURL
		}
	}
	return flat
}

// extractListField normalizes a list-like field that may arrive absent,
// as a bare list, or as an object wrapping the list under innerKey.
func extractListField(value any, innerKey string) []any {
	switch v := value.(type) {
	case nil:
		return []any{}
	case []any:
		return v
	case map[string]any:
		if inner, ok := v[innerKey].([]any); ok {
			return inner
		}
		return []any{}
	default:
		return []any{}
	}
}

func firstPresent(record map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := record[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

// normalizeKey lower-cases a scraped field name and joins words with
// underscores, so "Title Status" and "title_status" land on one column.
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
}

func asString(value any) *string {
	switch v := value.(type) {
	case string:
		return &v
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(v)
		return &s
	default:
		return nil
	}
}

func asList(value any) []any {
	if list, ok := value.([]any); ok {
		return list
	}
	return nil
}
