package contigcaller

// MisassemblyFixer re-segments a called path when a k-mer (including
// collapsed alternates) repeats along it: evidence that was recorded
// against the first occurrence may actually belong to the second. Rather
// than try to disentangle the two, the path is truncated at the first
// repeat, so the shorter, unambiguous prefix is what gets called.
type MisassemblyFixer struct{}

func newMisassemblyFixer() *MisassemblyFixer { return &MisassemblyFixer{} }

// fix returns path unchanged if it contains no k-mer repeat, or a
// truncated prefix ending just before the first repeated k-mer.
func (f *MisassemblyFixer) fix(path []*PositionalKmerNode) []*PositionalKmerNode {
	seen := make(map[Kmer]struct{})
	for ni, n := range path {
		for i := range n.Kmers {
			for _, k := range n.kmerAt(i) {
				if _, ok := seen[k]; ok {
					return truncateAt(path, ni, i)
				}
				seen[k] = struct{}{}
			}
		}
	}
	return path
}

// truncateAt returns path cut so it ends just before offset i of the node
// at index ni (exclusive). The node at ni is itself trimmed to its first i
// k-mers when i>0; a trimmed node's Next adjacency is cleared since it no
// longer extends into the dropped tail.
func truncateAt(path []*PositionalKmerNode, ni, i int) []*PositionalKmerNode {
	if i == 0 {
		return path[:ni]
	}
	out := make([]*PositionalKmerNode, ni+1)
	copy(out, path[:ni])
	n := path[ni]
	out[ni] = &PositionalKmerNode{
		id:          n.id,
		Kmers:       append([]Kmer(nil), n.Kmers[:i]...),
		Weights:     append([]int(nil), n.Weights[:i]...),
		FirstStart:  n.FirstStart,
		FirstEnd:    n.FirstEnd,
		IsReference: n.IsReference,
		Prev:        n.Prev,
		Next:        nil,
	}
	return out
}
