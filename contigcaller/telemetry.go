package contigcaller

import (
	"encoding/json"
	"io"

	"github.com/klauspost/compress/gzip"
)

// GraphSnapshot is the payload delivered to Opts.GraphSink, a pure,
// optional visualization hook.
type GraphSnapshot struct {
	LiveNodes         int
	ReferenceFraction float64
	FirstStart        Pos
	// CoveredBases is the total width of the live graph's positional
	// interval union: nodes whose [FirstStart, LastEnd] spans overlap or
	// abut count once, not once per node.
	CoveredBases int
}

// graphSnapshot builds a GraphSnapshot from the current index state.
func graphSnapshot(idx *PathNodeIndex) GraphSnapshot {
	refs := 0
	for _, n := range idx.byPosition {
		if n.IsReference {
			refs++
		}
	}
	frac := 0.0
	if idx.len() > 0 {
		frac = float64(refs) / float64(idx.len())
	}
	return GraphSnapshot{
		LiveNodes:         idx.len(),
		ReferenceFraction: frac,
		FirstStart:        idx.firstStart(),
		CoveredBases:      idx.coveredBases(),
	}
}

// NewGzipGraphSink returns a GraphSink that gzip-compresses one JSON
// object per snapshot to w, matching the teacher's convention of wrapping
// writers with klauspost/compress/gzip for telemetry/export streams.
func NewGzipGraphSink(w io.Writer) (func(GraphSnapshot) error, func() error) {
	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	sink := func(snap GraphSnapshot) error {
		return enc.Encode(snap)
	}
	return sink, gz.Close
}
