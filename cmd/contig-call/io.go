package main

// This file defines the NDJSON wire encoding used to feed a
// contigcaller.Assembler from a flat file and to dump its output back out.
// Each input line is one wireNode; each output line is one wireContig.

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/contigcaller"
)

// wireOffsetSupport mirrors contigcaller.OffsetSupport for JSON transport.
type wireOffsetSupport struct {
	EvidenceID int64 `json:"evidence_id"`
	Weight     int   `json:"weight"`
}

// wireNode is the NDJSON record for one input PositionalKmerNode. Kmers are
// transported as ASCII strings rather than packed integers; Prev/Next
// reference other nodes by their 1-based arrival ordinal in the input
// stream, matching the order nodes are read by ndjsonSource.Next.
type wireNode struct {
	FirstStart int64                  `json:"first_start"`
	FirstEnd   int64                  `json:"first_end"`
	Kmers      []string               `json:"kmers"`
	Weights    []int                  `json:"weights"`
	IsRef      bool                   `json:"is_reference"`
	Support    [][]wireOffsetSupport  `json:"support,omitempty"`
	Collapsed  map[string][]string    `json:"collapsed_kmers,omitempty"`
	Prev       []int64                `json:"prev,omitempty"`
	Next       []int64                `json:"next,omitempty"`
}

// wireAnchorPos mirrors contigcaller.AnchorPos.
type wireAnchorPos struct {
	Pos       int64 `json:"pos"`
	BaseCount int   `json:"base_count"`
}

// wireContig is the NDJSON record written for each emitted
// contigcaller.Contig.
type wireContig struct {
	Bases          string          `json:"bases"`
	Quals          []byte          `json:"quals"`
	Class          string          `json:"class"`
	Anchors        [2]wireAnchorPos `json:"anchors"`
	EvidenceIDs    []int64         `json:"evidence_ids"`
	ReferenceIndex int             `json:"reference_index"`
}

func wireContigFrom(c contigcaller.Contig) wireContig {
	w := wireContig{
		Bases:          string(c.Bases),
		Quals:          c.Quals,
		Class:          c.Class.String(),
		ReferenceIndex: c.ReferenceIndex,
	}
	for i, a := range c.Anchors {
		w.Anchors[i] = wireAnchorPos{Pos: int64(a.Pos), BaseCount: a.BaseCount}
	}
	w.EvidenceIDs = make([]int64, len(c.EvidenceIDs))
	for i, id := range c.EvidenceIDs {
		w.EvidenceIDs[i] = int64(id)
	}
	return w
}

// ndjsonSource implements contigcaller.PositionalKmerNodeSource over an
// NDJSON stream of wireNode records, numbering them 1..N by read order so
// a record's Prev/Next fields can reference earlier or later siblings by
// that same ordinal.
type ndjsonSource struct {
	dec *json.Decoder
	n   int64
}

func newNDJSONSource(r io.Reader) *ndjsonSource {
	return &ndjsonSource{dec: json.NewDecoder(bufio.NewReader(r))}
}

func (s *ndjsonSource) Next() (contigcaller.PositionalKmerNode, bool, error) {
	var w wireNode
	if err := s.dec.Decode(&w); err != nil {
		if err == io.EOF {
			return contigcaller.PositionalKmerNode{}, false, nil
		}
		return contigcaller.PositionalKmerNode{}, false, fmt.Errorf("decode input record %d: %w", s.n+1, err)
	}
	s.n++
	return nodeFromWire(w), true, nil
}

func nodeFromWire(w wireNode) contigcaller.PositionalKmerNode {
	n := contigcaller.PositionalKmerNode{
		FirstStart:  contigcaller.Pos(w.FirstStart),
		FirstEnd:    contigcaller.Pos(w.FirstEnd),
		Weights:     w.Weights,
		IsReference: w.IsRef,
	}
	n.Kmers = make([]contigcaller.Kmer, len(w.Kmers))
	for i, s := range w.Kmers {
		km, _ := contigcaller.ParseKmer(s)
		n.Kmers[i] = km
	}
	if len(w.Support) > 0 {
		n.SupportByOffset = make([][]contigcaller.OffsetSupport, len(w.Support))
		for i, offs := range w.Support {
			converted := make([]contigcaller.OffsetSupport, len(offs))
			for j, o := range offs {
				converted[j] = contigcaller.OffsetSupport{
					EvidenceID: contigcaller.EvidenceID(o.EvidenceID),
					Weight:     o.Weight,
				}
			}
			n.SupportByOffset[i] = converted
		}
	}
	if len(w.Collapsed) > 0 {
		n.CollapsedKmers = make(map[int][]contigcaller.Kmer, len(w.Collapsed))
		for offsetStr, seqs := range w.Collapsed {
			offset, err := strconv.Atoi(offsetStr)
			if err != nil {
				continue
			}
			kmers := make([]contigcaller.Kmer, len(seqs))
			for i, s := range seqs {
				km, _ := contigcaller.ParseKmer(s)
				kmers[i] = km
			}
			n.CollapsedKmers[offset] = kmers
		}
	}
	if len(w.Prev) > 0 {
		n.Prev = make(map[contigcaller.NodeID]struct{}, len(w.Prev))
		for _, id := range w.Prev {
			n.Prev[contigcaller.NodeID(id)] = struct{}{}
		}
	}
	if len(w.Next) > 0 {
		n.Next = make(map[contigcaller.NodeID]struct{}, len(w.Next))
		for _, id := range w.Next {
			n.Next[contigcaller.NodeID(id)] = struct{}{}
		}
	}
	return n
}
