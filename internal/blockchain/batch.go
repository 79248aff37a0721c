package blockchain

// MaxBatchSize is the getMultipleAccounts per-call address limit
const MaxBatchSize = 100

// PlanBatches splits addresses into consecutive chunks of at most limit entries.
// Order is preserved within and across chunks so responses can be matched by position.
func PlanBatches(addresses []string, limit int) [][]string {
	if limit < 1 {
		limit = 1
	}
	if len(addresses) == 0 {
		return nil
	}

	batches := make([][]string, 0, (len(addresses)+limit-1)/limit)
	for start := 0; start < len(addresses); start += limit {
		end := min(start+limit, len(addresses))
		batches = append(batches, addresses[start:end:end])
	}
	return batches
}
