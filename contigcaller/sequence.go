package contigcaller

// synthesizeSequence builds the base and per-base quality arrays for a
// called path. Consecutive k-mers — both within a node and across a node
// boundary — overlap by k-1 bases, so only the leading k-mer of the whole
// path contributes all k bases; every k-mer after that contributes just
// its final base.
func synthesizeSequence(path []*PositionalKmerNode, k int, qualityScale float64) (bases, quals []byte) {
	if len(path) == 0 {
		return nil, nil
	}
	length := pathBaseLength(path, k)
	bases = make([]byte, 0, length)
	quals = make([]byte, 0, length)
	first := true
	for _, n := range path {
		for i, km := range n.Kmers {
			decoded := kmerToBases(km, k)
			if first {
				bases = append(bases, decoded...)
				for range decoded {
					quals = append(quals, scaleQuality(n.Weights[i], qualityScale))
				}
				first = false
				continue
			}
			bases = append(bases, decoded[k-1])
			quals = append(quals, scaleQuality(n.Weights[i], qualityScale))
		}
	}
	return bases, quals
}

// maxQuality matches the printable Phred+33 ceiling used by FASTQ/SAM
// quality strings.
const maxQuality = 93

func scaleQuality(weight int, scale float64) byte {
	q := float64(weight) * scale
	if q > maxQuality {
		q = maxQuality
	}
	if q < 0 {
		q = 0
	}
	return byte(q)
}
