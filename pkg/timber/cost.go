package timber

import (
	"fmt"
	"math/bits"
)

// NumberOfHashes returns how many hash invocations Append performs to add
// the contiguous leaves lo..hi (inclusive) to a tree of height h that
// already holds exactly lo leaves. It is derived from the index range
// alone, so it can price a batch before submission.
func NumberOfHashes(hi, lo uint64, h uint8) uint64 {
	if hi < lo {
		panic(fmt.Sprintf("timber: hash count for empty range [%d, %d]", lo, hi))
	}
	batch := hi - lo + 1
	var count uint64
	for level := 0; level < bits.Len64(hi); level++ {
		count += hi>>uint(level) - lo>>uint(level)
	}
	// count >= batch-1 from level 0 alone
	return count - (batch - 1) + uint64(h)
}

// HashArrayTemplate returns, for each level 0..h-1, the bit length of the
// span the batch lo..hi covers at that level (at least 1). It sizes the
// per-level hash scratch space of the on-chain insert.
func HashArrayTemplate(hi, lo uint64, h uint8) []int {
	if hi < lo {
		panic(fmt.Sprintf("timber: hash template for empty range [%d, %d]", lo, hi))
	}
	out := make([]int, h)
	for level := range out {
		n := bits.Len64(hi>>uint(level) - lo>>uint(level))
		if n == 0 {
			n = 1
		}
		out[level] = n
	}
	return out
}
