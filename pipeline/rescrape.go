package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrNoRescrapeURLs is returned when a write is requested with nothing to
// write; callers translate it to a client error.
var ErrNoRescrapeURLs = errors.New("no rescrape urls provided")

// RescrapeSink persists the URLs that need re-scraping as a plain-text
// object, one URL per line, for the next scrape cycle to pick up.
type RescrapeSink struct {
	store  ObjectStore
	bucket string
	prefix string
	logger *slog.Logger

	// now is swapped out in tests
	now func() time.Time
}

func NewRescrapeSink(store ObjectStore, bucket, prefix string) *RescrapeSink {
	return &RescrapeSink{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: slog.Default().With(slog.String("caller", "RescrapeSink"), slog.String("bucket", bucket)),
		now:    time.Now,
	}
}

// Write uploads the URL list under a unix-timestamp key and returns the
// object key.
func (sink *RescrapeSink) Write(ctx context.Context, urls []string) (string, error) {
	const op = "RescrapeSink.Write"
	if len(urls) == 0 {
		return "", fmt.Errorf("[%s] %w", op, ErrNoRescrapeURLs)
	}

	key := fmt.Sprintf("%d.txt", sink.now().Unix())
	if sink.prefix != "" {
		key = sink.prefix + "/" + key
	}

	body := []byte(strings.Join(urls, "\n"))
	if err := sink.store.Put(ctx, sink.bucket, key, body, "text/plain"); err != nil {
		return "", fmt.Errorf("[%s] Fail to write rescrape urls, bucket=%s, key=%s, err=%w", op, sink.bucket, key, err)
	}
	sink.logger.Info("Rescrape urls written", slog.String("key", key), slog.Int("count", len(urls)))
	return key, nil
}
