package simplicial

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/zstreet87/TopoModelX/tensor"
)

const rankPrefix = "rank_"

// RankKey returns the label of rank r, e.g. "rank_0".
func RankKey(r int) string { return rankPrefix + strconv.Itoa(r) }

// ParseRankKey is the inverse of RankKey.
func ParseRankKey(key string) (int, error) {
	s, ok := strings.CutPrefix(key, rankPrefix)
	if !ok {
		return 0, fmt.Errorf("rank label %q lacks prefix %q", key, rankPrefix)
	}
	r, err := strconv.Atoi(s)
	if err != nil || r < 0 {
		return 0, fmt.Errorf("rank label %q: invalid rank", key)
	}
	return r, nil
}

// RankMap maps rank labels to per-rank tensors: features [n_r, C],
// incidences [n_{r-1}, n_r] or adjacencies [n_r, n_r].
type RankMap map[string]*tensor.Tensor

// At returns the tensor stored for rank r.
func (m RankMap) At(r int) (*tensor.Tensor, bool) {
	t, ok := m[RankKey(r)]
	return t, ok && t != nil
}

// Ranks returns the ranks present in m in ascending order. Labels that do
// not parse are skipped.
func (m RankMap) Ranks() []int {
	var ranks []int
	for k := range m {
		if r, err := ParseRankKey(k); err == nil {
			ranks = append(ranks, r)
		}
	}
	slices.Sort(ranks)
	return ranks
}

// RandomFeatures draws standard normal features [n_r, channels] for each rank.
func RandomFeatures(rng *rand.Rand, cellCounts []int, channels int) (RankMap, error) {
	x := RankMap{}
	for r, n := range cellCounts {
		t, err := tensor.Randn(rng, n, channels)
		if err != nil {
			return nil, err
		}
		x[RankKey(r)] = t
	}
	return x, nil
}

// RandomNeighborhoods draws 0/1 incidence [n_{r-1}, n_r] and adjacency
// [n_r, n_r] matrices for the given cell counts. They need not describe an
// actual complex; only their shapes are consistent.
func RandomNeighborhoods(rng *rand.Rand, cellCounts []int) (incidences, adjacencies RankMap, err error) {
	incidences, adjacencies = RankMap{}, RankMap{}
	for r, n := range cellCounts {
		if adjacencies[RankKey(r)], err = tensor.RandInt(rng, 0, 2, n, n); err != nil {
			return nil, nil, err
		}
		if r == 0 {
			continue
		}
		if incidences[RankKey(r)], err = tensor.RandInt(rng, 0, 2, cellCounts[r-1], n); err != nil {
			return nil, nil, err
		}
	}
	return incidences, adjacencies, nil
}
