package query

import (
	"sort"

	"github.com/corpusvault/corpusvault/internal/store"
)

// Weights configures Reciprocal Rank Fusion's per-list contribution.
type Weights struct {
	FTS float64 // weight for lexical (BM25) results, default 1.0
	Vec float64 // weight for vector (semantic) results, default 1.0
}

// DefaultRRFConstant is the RRF smoothing constant, k in spec.md §4.3 step 4.
const DefaultRRFConstant = 60

// candidate is one id's accumulated fusion state, carrying enough to break
// ties and resolve content without a second Store round trip.
type candidate struct {
	id       int64
	content  string
	score    float64
	firstSeenRank int // rank (0-indexed) in whichever list mentioned it first, for tie-breaking
	order    int // insertion order across both lists, for stable tie-breaking
}

// RRFFuse implements spec.md §4.3 step 4 literally: a list contributes
// w/(k+rank+1) only for ids it actually contains — no padding for ids
// missing from the other list, unlike the teacher's fusion.go, which pads
// the missing arm with max(len(bm25),len(vec))+1 (see DESIGN.md Open
// Question (a)). Ties are broken by preserving insertion order of the
// first list where the id appeared, per spec.md's literal wording.
func RRFFuse(lexical, vector []store.Result, weights Weights, k int) []Result {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(lexical) == 0 && len(vector) == 0 {
		return []Result{}
	}

	index := make(map[int64]*candidate, len(lexical)+len(vector))
	var order []int64
	nextOrder := 0

	add := func(list []store.Result, weight float64) {
		for rank, r := range list {
			c, ok := index[r.ID]
			if !ok {
				c = &candidate{id: r.ID, content: r.Content, firstSeenRank: rank, order: nextOrder}
				index[r.ID] = c
				order = append(order, r.ID)
				nextOrder++
			}
			c.score += weight / float64(k+rank+1)
		}
	}
	add(lexical, weights.FTS)
	add(vector, weights.Vec)

	results := make([]Result, 0, len(index))
	for _, id := range order {
		c := index[id]
		results = append(results, Result{ID: c.id, Content: c.content, Score: c.score, insertionOrder: c.order})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].insertionOrder < results[j].insertionOrder
	})

	return results
}
