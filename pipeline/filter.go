package pipeline

import (
	"strings"

	"github.com/samber/lo"

	"carsnbids-pipeline/models"
)

// terminalStatusTokens are the status substrings that mark an auction as
// finished. Anything else means the source page was scraped mid-auction
// (or the scrape broke) and the record must be fetched again.
var terminalStatusTokens = []string{"sold", "reserve not met", "cancelled"}

// PartitionValid splits a flattened batch into records with a recognized
// terminal status and the auction URLs that need re-scraping. Every input
// record lands on exactly one side.
func PartitionValid(records []models.FlatAuction) ([]models.FlatAuction, []string) {
	valid := make([]models.FlatAuction, 0, len(records))
	rescrapeURLs := make([]string, 0)
	for _, record := range records {
		if hasTerminalStatus(record.AuctionStatus) {
			valid = append(valid, record)
		} else {
			rescrapeURLs = append(rescrapeURLs, record.AuctionURL)
		}
	}
	return valid, rescrapeURLs
}

func hasTerminalStatus(status *string) bool {
	if status == nil {
		return false
	}
	folded := strings.ToLower(*status)
	return lo.SomeBy(terminalStatusTokens, func(token string) bool {
		return strings.Contains(folded, token)
	})
}
