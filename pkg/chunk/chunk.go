// Package chunk splits key lists into bounded batches so callers can work
// around the store's membership-predicate size limit.
package chunk

// Partition splits keys into consecutive groups of at most size elements.
// A size below one falls back to a single group. The returned slices alias
// the input; callers must not mutate them.
func Partition(keys []string, size int) [][]string {
	if len(keys) == 0 {
		return nil
	}
	if size < 1 {
		return [][]string{keys}
	}
	groups := make([][]string, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		groups = append(groups, keys[start:end])
	}
	return groups
}
