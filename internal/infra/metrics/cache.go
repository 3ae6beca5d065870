package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cache names and lookup results used as label values.
const (
	CacheTier     = "tier"
	CacheTierList = "tier_list"
	CacheStep     = "step"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

func init() { register(cacheLookupsTotal) }

var cacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Redis lookups of the tier catalogue and wizard step cache.",
	},
	[]string{"cache", "result"},
)

// IncCacheRequest counts one lookup of cache ending in result.
func IncCacheRequest(cache, result string) {
	cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}
