package labels

// dsu is a disjoint-set union over label strings. Callers hold the
// Taxonomy lock.
type dsu struct {
	root       []int
	rank       []int
	labels     map[string]int
	labelIndex map[int]string
}

func newDSU() *dsu {
	return &dsu{
		root:       make([]int, 0),
		rank:       make([]int, 0),
		labels:     make(map[string]int),
		labelIndex: make(map[int]string),
	}
}

// add adds a new singleton set and returns its index
func (d *dsu) add(label string) int {
	idx := len(d.root)
	d.root = append(d.root, idx)
	d.rank = append(d.rank, 0)
	d.labels[label] = idx
	d.labelIndex[idx] = label
	return idx
}

func (d *dsu) find(x int) int {
	if d.root[x] == x {
		return x
	}
	d.root[x] = d.find(d.root[x]) // Path compression
	return d.root[x]
}

func (d *dsu) findOrCreate(label string) int {
	idx, ok := d.labels[label]
	if !ok {
		return d.add(label)
	}
	return d.find(idx)
}

// attach merges child's set under parent's root. Unlike a rank union the
// parent root always survives, so the canonical label stays the root.
func (d *dsu) attach(parent, child int) {
	rootP := d.find(parent)
	rootC := d.find(child)
	if rootP == rootC {
		return
	}
	d.root[rootC] = rootP
	if d.rank[rootP] <= d.rank[rootC] {
		d.rank[rootP] = d.rank[rootC] + 1
	}
}

// peek walks to the root without compressing, so it is safe under a read lock
func (d *dsu) peek(x int) int {
	for d.root[x] != x {
		x = d.root[x]
	}
	return x
}

func (d *dsu) rootLabel(label string) (string, bool) {
	idx, ok := d.labels[label]
	if !ok {
		return "", false
	}
	return d.labelIndex[d.peek(idx)], true
}

func (d *dsu) countSets() int {
	roots := make(map[int]struct{})
	for i := range d.root {
		roots[d.find(i)] = struct{}{}
	}
	return len(roots)
}
