package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

// Register adds every collector to reg. Only the first call has an effect; call it
// once from main before serving /metrics.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingCacheTotal,
			SearchRequestsTotal,
			SearchDuration,
			SearchResultsReturned,
			MalformedRecordsSkipped,
			CorpusRecords,
			ReloadsTotal,
			RecacheDuration,
		)
	})
}
