package simplicial

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/zstreet87/TopoModelX/tensor"
)

// ErrRankOutOfRange is returned when a rank exceeds the complex dimension.
var ErrRankOutOfRange = errors.New("rank out of range")

// Simplex is a sorted list of distinct vertex ids.
type Simplex []int

// Rank is the number of vertices minus one.
func (s Simplex) Rank() int { return len(s) - 1 }

func (s Simplex) key() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// Complex is a finite simplicial complex, closed under taking faces.
// Cells of each rank are sorted lexicographically; a cell's position in
// that order is its row/column in every neighborhood matrix.
type Complex struct {
	cells [][]Simplex
	index []map[string]int
}

// MaxSimplexVertices bounds the vertices of one input simplex. The closure of
// an n-vertex simplex has 2^n - 1 faces.
const MaxSimplexVertices = 16

// NewComplex builds the closure of the given simplices. Simplices with more
// than MaxSimplexVertices vertices are rejected.
func NewComplex(simplices [][]int) (*Complex, error) {
	byRank := map[int]map[string]Simplex{}
	maxRank := -1
	for i, raw := range simplices {
		if len(raw) == 0 {
			return nil, fmt.Errorf("simplex %d is empty", i)
		}
		if len(raw) > MaxSimplexVertices {
			return nil, fmt.Errorf("simplex %d has %d vertices, at most %d supported", i, len(raw), MaxSimplexVertices)
		}
		s := Simplex(slices.Clone(raw))
		slices.Sort(s)
		for j := 1; j < len(s); j++ {
			if s[j] == s[j-1] {
				return nil, fmt.Errorf("simplex %d repeats vertex %d", i, s[j])
			}
		}
		for _, f := range faces(s) {
			r := f.Rank()
			if byRank[r] == nil {
				byRank[r] = map[string]Simplex{}
			}
			byRank[r][f.key()] = f
		}
		maxRank = max(maxRank, s.Rank())
	}
	c := &Complex{
		cells: make([][]Simplex, maxRank+1),
		index: make([]map[string]int, maxRank+1),
	}
	for r := 0; r <= maxRank; r++ {
		cells := make([]Simplex, 0, len(byRank[r]))
		for _, s := range byRank[r] {
			cells = append(cells, s)
		}
		slices.SortFunc(cells, func(a, b Simplex) int { return slices.Compare(a, b) })
		c.cells[r] = cells
		c.index[r] = make(map[string]int, len(cells))
		for i, s := range cells {
			c.index[r][s.key()] = i
		}
	}
	return c, nil
}

// faces returns every non-empty subset of s, s included.
func faces(s Simplex) []Simplex {
	n := len(s)
	out := make([]Simplex, 0, (1<<n)-1)
	for mask := 1; mask < 1<<n; mask++ {
		f := make(Simplex, 0, n)
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				f = append(f, s[i])
			}
		}
		out = append(out, f)
	}
	return out
}

// boundary returns the rank-1 faces of s.
func boundary(s Simplex) []Simplex {
	if len(s) < 2 {
		return nil
	}
	out := make([]Simplex, len(s))
	for i := range s {
		f := make(Simplex, 0, len(s)-1)
		f = append(f, s[:i]...)
		out[i] = append(f, s[i+1:]...)
	}
	return out
}

// Dim is the highest cell rank, or -1 for an empty complex.
func (c *Complex) Dim() int { return len(c.cells) - 1 }

// NumCells returns the number of cells of the given rank (0 outside the complex).
func (c *Complex) NumCells(rank int) int {
	if rank < 0 || rank > c.Dim() {
		return 0
	}
	return len(c.cells[rank])
}

// Cells returns the cells of the given rank in index order.
func (c *Complex) Cells(rank int) []Simplex {
	if rank < 0 || rank > c.Dim() {
		return nil
	}
	return slices.Clone(c.cells[rank])
}

// Incidence returns the unsigned boundary matrix [n_{rank-1}, n_rank].
func (c *Complex) Incidence(rank int) (*tensor.Tensor, error) {
	if rank < 1 || rank > c.Dim() {
		return nil, fmt.Errorf("%w: incidence of rank %d in a complex of dimension %d", ErrRankOutOfRange, rank, c.Dim())
	}
	rows, cols := len(c.cells[rank-1]), len(c.cells[rank])
	t, err := tensor.Zeros(rows, cols)
	if err != nil {
		return nil, err
	}
	data := t.Float32()
	for j, s := range c.cells[rank] {
		for _, f := range boundary(s) {
			data[c.index[rank-1][f.key()]*cols+j] = 1
		}
	}
	return t, nil
}

// Adjacency returns the unsigned [n_rank, n_rank] adjacency of rank cells.
// Two distinct cells are adjacent when they are faces of a common cell of
// rank+1; at the top rank, when they share a face of rank-1 instead.
// selfLoops puts ones on the diagonal.
func (c *Complex) Adjacency(rank int, selfLoops bool) (*tensor.Tensor, error) {
	if rank < 0 || rank > c.Dim() {
		return nil, fmt.Errorf("%w: adjacency of rank %d in a complex of dimension %d", ErrRankOutOfRange, rank, c.Dim())
	}
	n := len(c.cells[rank])
	t, err := tensor.Zeros(n, n)
	if err != nil {
		return nil, err
	}
	data := t.Float32()
	link := func(group []int) {
		for _, i := range group {
			for _, j := range group {
				if i != j {
					data[i*n+j] = 1
				}
			}
		}
	}
	if rank < c.Dim() {
		for _, co := range c.cells[rank+1] {
			group := make([]int, 0, len(co))
			for _, f := range boundary(co) {
				group = append(group, c.index[rank][f.key()])
			}
			link(group)
		}
	} else if rank > 0 {
		shared := make(map[string][]int)
		for i, s := range c.cells[rank] {
			for _, f := range boundary(s) {
				shared[f.key()] = append(shared[f.key()], i)
			}
		}
		for _, group := range shared {
			link(group)
		}
	}
	if selfLoops {
		for i := 0; i < n; i++ {
			data[i*n+i] = 1
		}
	}
	return t, nil
}

// Neighborhoods returns the incidence matrices for ranks 1..maxRank and the
// adjacency matrices for ranks 0..maxRank, keyed by rank label.
func (c *Complex) Neighborhoods(maxRank int, selfLoops bool) (incidences, adjacencies RankMap, err error) {
	if maxRank < 0 || maxRank > c.Dim() {
		return nil, nil, fmt.Errorf("%w: max rank %d in a complex of dimension %d", ErrRankOutOfRange, maxRank, c.Dim())
	}
	incidences, adjacencies = RankMap{}, RankMap{}
	for r := 0; r <= maxRank; r++ {
		if adjacencies[RankKey(r)], err = c.Adjacency(r, selfLoops); err != nil {
			return nil, nil, err
		}
		if r == 0 {
			continue
		}
		if incidences[RankKey(r)], err = c.Incidence(r); err != nil {
			return nil, nil, err
		}
	}
	return incidences, adjacencies, nil
}
