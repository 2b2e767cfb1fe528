package analytics

import (
	"sort"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

const (
	// UntaggedLabel is the bucket counting tasks without any tag.
	UntaggedLabel = "Untagged"

	maxTags        = 8
	maxTagLabelLen = 15
)

// TagFrequency counts tag occurrences over tasks and returns the top entries,
// highest count first. Equal counts keep the order in which the tag was first
// seen. A tag literally named "Untagged" shares the untagged bucket.
func TagFrequency(tasks []domain.TaskRecord) []Point {
	var counts domain.Counts
	for _, t := range tasks {
		if len(t.Tags) == 0 {
			counts.Add(UntaggedLabel, 1)
			continue
		}
		for _, tag := range t.Tags {
			counts.Add(tag, 1)
		}
	}

	keys := counts.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		return counts.Get(keys[i]) > counts.Get(keys[j])
	})
	if len(keys) > maxTags {
		keys = keys[:maxTags]
	}

	out := make([]Point, 0, len(keys))
	for _, k := range keys {
		out = append(out, Point{Label: truncateLabel(k), Value: float64(counts.Get(k))})
	}
	return out
}

func truncateLabel(s string) string {
	r := []rune(s)
	if len(r) <= maxTagLabelLen {
		return s
	}
	return string(r[:maxTagLabelLen]) + "..."
}
