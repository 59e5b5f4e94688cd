package services

import "github.com/sentify-hq/sentify-engine/pkg/models"

// IsMostRelevant reports whether ticker is the primary subject of an article
// with the given ticker relevances. The leader starts empty with score 0 and
// is replaced only by a strictly greater score, so ties keep the earlier
// entry and an all-zero list has no leader.
func IsMostRelevant(tickers []models.TickerRelevance, ticker string) bool {
	leader := ""
	best := 0.0
	for _, tr := range tickers {
		if tr.Relevance > best {
			best = tr.Relevance
			leader = tr.Ticker
		}
	}
	return leader != "" && leader == ticker
}
