package models

import (
	"time"

	"github.com/google/uuid"
)

// FlatAuction is the uniform record shape produced by the flattener.
// Scalar fields stay loosely typed (raw scraped text, nil when the source
// key is absent); list fields keep their elements opaque. Untyped maps do
// not travel past the flattener.
type FlatAuction struct {
	AuctionURL      string
	AuctionTitle    *string
	AuctionSubtitle *string
	DougsTake       *string

	// quick facts
	Make        *string
	Model       *string
	Seller      *string
	SellerType  *string
	BodyStyle   *string
	Engine      *string
	Mileage     *string
	TitleStatus *string
	Location    *string

	Transmission *string
	Drivetrain   *string

	AuctionDate     *string
	AuctionStatus   *string
	HighestBidValue *string
	BidCount        any

	// auction stats, default 0 when the stats sub-object is missing
	ViewCount    any
	WatcherCount any

	Bids []any

	// Highlights, Services and Videos are normalized to an empty slice
	// when absent; the remaining list fields stay nil so their counts can
	// distinguish "absent" from "empty".
	Highlights       []any
	Services         []any
	Videos           []any
	Equipment        []any
	Modifications    []any
	KnownFlaws       []any
	IncludedItems    []any
	OwnershipHistory []any
	SellerNotes      []any
}

// CanonicalAuction is the cleaned, typed output unit of the transform
// pipeline. JSON tags are the persisted NDJSON column names and the
// warehouse row contract; renaming one is a breaking change.
type CanonicalAuction struct {
	AuctionID  string `json:"auction_id" gorm:"primaryKey;type:varchar(64)"`
	AuctionURL string `json:"auction_url" gorm:"type:text"`

	AuctionTitle    *string `json:"auction_title" gorm:"type:text"`
	AuctionSubtitle *string `json:"auction_subtitle" gorm:"type:text"`
	DougsTake       *string `json:"dougs_take" gorm:"type:text"`

	Make       *string `json:"make" gorm:"type:varchar(128)"`
	Model      *string `json:"model" gorm:"type:varchar(255)"`
	Seller     *string `json:"seller" gorm:"type:varchar(255)"`
	SellerType *string `json:"seller_type" gorm:"type:varchar(64)"`
	BodyStyle  *string `json:"body_style" gorm:"type:varchar(64)"`
	Engine     *string `json:"engine" gorm:"type:varchar(255)"`

	Mileage *int64 `json:"mileage"`

	TitleStatus        *string `json:"title_status" gorm:"type:varchar(255)"`
	TitleStatusCleaned *string `json:"title_status_cleaned" gorm:"type:varchar(255)"`
	TitleState         *string `json:"title_state" gorm:"type:varchar(64)"`

	Location *string `json:"location" gorm:"type:varchar(255)"`
	City     *string `json:"city" gorm:"type:varchar(255)"`
	State    *string `json:"state" gorm:"type:varchar(64)"`

	Transmission     *string `json:"transmission" gorm:"type:varchar(255)"`
	TransmissionType *string `json:"transmission_type" gorm:"type:varchar(32)"`
	Gears            *int64  `json:"gears"`

	Drivetrain string `json:"drivetrain" gorm:"type:varchar(32)"`

	AuctionDate   *time.Time `json:"auction_date" gorm:"type:timestamp with time zone;index"`
	AuctionStatus *string    `json:"auction_status" gorm:"type:varchar(64)"`
	ReserveMet    bool       `json:"reserve_met"`

	HighestBidValue *float64 `json:"highest_bid_value"`
	BidCount        *int64   `json:"bid_count"`
	ViewCount       int64    `json:"view_count"`
	WatcherCount    int64    `json:"watcher_count"`

	Bids []int64 `json:"bids" gorm:"serializer:json"`

	// bid features, defined only when the record carries at least two bids
	MaxBid    *float64 `json:"max_bid"`
	MinBid    *float64 `json:"min_bid"`
	MeanBid   *float64 `json:"mean_bid"`
	MedianBid *float64 `json:"median_bid"`
	BidRange  *float64 `json:"bid_range"`

	HighlightCount     *int64 `json:"highlight_count"`
	EquipmentCount     *int64 `json:"equipment_count"`
	ModCount           *int64 `json:"mod_count"`
	FlawCount          *int64 `json:"flaw_count"`
	ServiceCount       *int64 `json:"service_count"`
	IncludedItemsCount *int64 `json:"included_items_count"`
	VideoCount         *int64 `json:"video_count"`

	ManufactureYear *int64 `json:"manufacture_year"`

	Highlights       []any `json:"auction_highlights" gorm:"serializer:json"`
	Services         []any `json:"services" gorm:"serializer:json"`
	Equipment        []any `json:"auction_equipment" gorm:"serializer:json"`
	Modifications    []any `json:"modifications" gorm:"serializer:json"`
	KnownFlaws       []any `json:"known_flaws" gorm:"serializer:json"`
	IncludedItems    []any `json:"included_items" gorm:"serializer:json"`
	OwnershipHistory []any `json:"ownership_history" gorm:"serializer:json"`
	SellerNotes      []any `json:"seller_notes" gorm:"serializer:json"`
	Videos           []any `json:"auction_videos" gorm:"serializer:json"`
}

func (CanonicalAuction) TableName() string {
	return "auction_records"
}

// RunSummary describes one completed transform invocation. It is published
// to the pipeline event stream for downstream notification consumers.
type RunSummary struct {
	RunID           uuid.UUID `json:"run_id"`
	SourceBucket    string    `json:"source_bucket"`
	SourceKey       string    `json:"source_key"`
	ProcessedBucket string    `json:"processed_bucket"`
	PartitionKeys   []string  `json:"partition_keys"`
	RecordCount     int       `json:"record_count"`
	RescrapeCount   int       `json:"rescrape_count"`
	FinishedAt      time.Time `json:"finished_at"`
}
