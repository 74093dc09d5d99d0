package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/samber/lo"

	"carsnbids-pipeline/models"
)

const partitionContentType = "application/json"

// ObjectStore is the narrow object-storage contract the pipeline depends
// on. The S3 adapter satisfies it; tests use an in-memory fake.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// MergeStore persists canonical records as date-partitioned NDJSON
// objects, one object per auction day, merging into whatever is already
// there.
//
// The read-merge-write cycle is not transactional: two concurrent
// invocations touching the same partition can each read the same prior
// state and lose the other's records. The orchestrator runs one
// invocation at a time; do not add locking here without changing that
// contract.
type MergeStore struct {
	store  ObjectStore
	bucket string
	logger *slog.Logger
}

func NewMergeStore(store ObjectStore, bucket string) *MergeStore {
	return &MergeStore{
		store:  store,
		bucket: bucket,
		logger: slog.Default().With(slog.String("caller", "MergeStore"), slog.String("bucket", bucket)),
	}
}

// MergeAndPersist groups the batch by the UTC calendar date of
// auction_date and runs a read-merge-dedup-write cycle per partition.
// It returns the object keys that were written. Records whose date never
// parsed carry no partition and are skipped.
func (ms *MergeStore) MergeAndPersist(ctx context.Context, records []models.CanonicalAuction) ([]string, error) {
	const op = "MergeAndPersist"

	dated := lo.Filter(records, func(record models.CanonicalAuction, _ int) bool {
		return record.AuctionDate != nil
	})
	if skipped := len(records) - len(dated); skipped > 0 {
		ms.logger.Warn("Skip records without auction date", slog.Int("count", skipped))
	}

	groups := lo.GroupBy(dated, func(record models.CanonicalAuction) string {
		return record.AuctionDate.UTC().Format("2006-01-02")
	})

	// deterministic partition order across runs
	days := lo.Keys(groups)
	sort.Strings(days)

	uploaded := make([]string, 0, len(days))
	for _, day := range days {
		key := day + ".json"
		if err := ms.mergePartition(ctx, key, groups[day]); err != nil {
			return uploaded, fmt.Errorf("[%s] Fail to merge partition, bucket=%s, key=%s, err=%w", op, ms.bucket, key, err)
		}
		uploaded = append(uploaded, key)
	}
	return uploaded, nil
}

// mergePartition writes the group verbatim when the partition object does
// not exist yet; otherwise it rebuilds the partition from new ++ prior,
// re-enforces types, re-sorts by auction_date descending and keeps the
// first record per auction_id. The sort is stable and the new batch
// precedes prior records in the working set, so a re-submitted record
// replaces its persisted copy even on an exact timestamp tie.
func (ms *MergeStore) mergePartition(ctx context.Context, key string, group []models.CanonicalAuction) error {
	exists, err := ms.store.Exists(ctx, ms.bucket, key)
	if err != nil {
		return err
	}

	working := group
	if exists {
		body, err := ms.store.Get(ctx, ms.bucket, key)
		if err != nil {
			return err
		}
		prior, err := DecodeNDJSON(body)
		if err != nil {
			return err
		}
		working = make([]models.CanonicalAuction, 0, len(group)+len(prior))
		working = append(working, group...)
		working = append(working, prior...)
		enforceTypes(working)

		sort.SliceStable(working, func(i, j int) bool {
			left, right := working[i].AuctionDate, working[j].AuctionDate
			if left == nil {
				return false
			}
			if right == nil {
				return true
			}
			return left.After(*right)
		})
		working = lo.UniqBy(working, func(record models.CanonicalAuction) string {
			return record.AuctionID
		})
	}

	body, err := EncodeNDJSON(working)
	if err != nil {
		return err
	}
	if err := ms.store.Put(ctx, ms.bucket, key, body, partitionContentType); err != nil {
		return err
	}
	ms.logger.Info("Partition written", slog.String("key", key), slog.Int("records", len(working)), slog.Bool("merged", exists))
	return nil
}

// enforceTypes re-applies the derived typing that a round trip through
// the text encoding can drift: reserve_met is re-derived from the
// normalized status and bid lists never persist as null.
func enforceTypes(records []models.CanonicalAuction) {
	for i := range records {
		records[i].ReserveMet = records[i].AuctionStatus != nil && strings.EqualFold(*records[i].AuctionStatus, "sold")
		if records[i].Bids == nil {
			records[i].Bids = []int64{}
		}
	}
}

// EncodeNDJSON renders records as UTF-8 newline-delimited JSON, one
// record per line.
func EncodeNDJSON(records []models.CanonicalAuction) ([]byte, error) {
	const op = "EncodeNDJSON"
	var buf bytes.Buffer
	for i, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to encode record, auctionID=%s, err=%w", op, record.AuctionID, err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// DecodeNDJSON parses a partition object body. Blank lines are ignored; a
// line that does not decode marks the partition as corrupt and fails the
// merge rather than silently dropping persisted records.
func DecodeNDJSON(body []byte) ([]models.CanonicalAuction, error) {
	const op = "DecodeNDJSON"
	lines := strings.Split(string(body), "\n")
	records := make([]models.CanonicalAuction, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var record models.CanonicalAuction
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("[%s] Fail to decode line %d, err=%w", op, i+1, err)
		}
		records = append(records, record)
	}
	return records, nil
}
