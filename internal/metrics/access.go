package metrics

// DecisionMade records an access decision.
func DecisionMade(capability, reason string) {
	AccessDecisionsTotal.WithLabelValues(capability, reason).Inc()
}

// UsageRecorded records a written usage record.
func UsageRecorded(action string) {
	UsageRecordsTotal.WithLabelValues(action).Inc()
}

// MutationFinished records an admin mutation outcome
func MutationFinished(op, outcome string) {
	AdminMutationsTotal.WithLabelValues(op, outcome).Inc()
}

// CacheLookup records a resolution cache lookup result
func CacheLookup(result string) {
	ResolutionCacheTotal.WithLabelValues(result).Inc()
}

// StoreRetried records a retried store read
func StoreRetried(op string) {
	StoreRetriesTotal.WithLabelValues(op).Inc()
}
