package usage

// UsageData is the on-disk layout of usage.json.
type UsageData struct {
	Version   string          `json:"version"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// AggregatedStats holds token counters broken down by dimension.
type AggregatedStats struct {
	Total       TokenCounts            `json:"total"`
	Requests    int64                  `json:"requests"`
	ByEndpoint  map[string]TokenCounts `json:"by_endpoint"`
	ByModel     map[string]TokenCounts `json:"by_model"`
	ByOperation map[string]TokenCounts `json:"by_operation"`
}

// TokenCounts holds prompt/completion sums.
type TokenCounts struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

func (tc *TokenCounts) Add(input, output int) {
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
}

func newAggregate() AggregatedStats {
	return AggregatedStats{
		ByEndpoint:  make(map[string]TokenCounts),
		ByModel:     make(map[string]TokenCounts),
		ByOperation: make(map[string]TokenCounts),
	}
}
