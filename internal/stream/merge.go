package stream

import (
	"sort"

	"github.com/wayline-gg/wayline/internal/route"
)

// sanitize prepares an incoming batch for merging: invalid and non-finite
// points are dropped individually (the rest of the batch survives), the
// batch is sorted by timestamp when the transport delivered it unsorted,
// and intra-batch duplicate timestamps collapse to the first occurrence.
func sanitize(batch []route.Point) (clean []route.Point, dropped int) {
	clean = make([]route.Point, 0, len(batch))
	for _, p := range batch {
		if !p.Valid() || !p.Finite() {
			dropped++
			continue
		}
		clean = append(clean, p)
	}

	if !sort.SliceIsSorted(clean, func(i, j int) bool {
		return clean[i].TimestampMs < clean[j].TimestampMs
	}) {
		// Stable keeps the first occurrence first among equal timestamps.
		sort.SliceStable(clean, func(i, j int) bool {
			return clean[i].TimestampMs < clean[j].TimestampMs
		})
	}

	out := clean[:0]
	for i, p := range clean {
		if i > 0 && p.TimestampMs == out[len(out)-1].TimestampMs {
			continue
		}
		out = append(out, p)
	}
	return out, dropped
}

// merge performs the two-pointer merge of two individually ascending,
// duplicate-free sequences. On equal timestamps the point already in the
// buffer wins (first-seen) and the incoming one counts as a duplicate. The
// result is ascending and duplicate-free by construction; added lists the
// incoming points that were actually new, in order.
func merge(buf, incoming []route.Point) (merged, added []route.Point, duplicates int) {
	if len(incoming) == 0 {
		return buf, nil, 0
	}

	merged = make([]route.Point, 0, len(buf)+len(incoming))
	i, j := 0, 0
	for i < len(buf) && j < len(incoming) {
		switch {
		case buf[i].TimestampMs < incoming[j].TimestampMs:
			merged = append(merged, buf[i])
			i++
		case buf[i].TimestampMs > incoming[j].TimestampMs:
			merged = append(merged, incoming[j])
			added = append(added, incoming[j])
			j++
		default:
			merged = append(merged, buf[i])
			i++
			j++
			duplicates++
		}
	}
	merged = append(merged, buf[i:]...)
	for ; j < len(incoming); j++ {
		merged = append(merged, incoming[j])
		added = append(added, incoming[j])
	}
	return merged, added, duplicates
}
