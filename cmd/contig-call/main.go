// Binary contig-call streams a positional de Bruijn node graph from an
// NDJSON input file and emits the called contigs as NDJSON to an output
// file, using github.com/grailbio/contigcaller for the actual assembly.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/contigcaller"
)

var (
	inputFlag  = flag.String("input", "", "path to an NDJSON file of input nodes (required)")
	outputFlag = flag.String("output", "", "path to write NDJSON-encoded called contigs (required)")

	opts = contigcaller.DefaultOpts
)

func init() {
	flag.IntVar(&opts.K, "k", contigcaller.DefaultOpts.K, "k-mer length")
	flag.IntVar(&opts.ReferenceIndex, "reference-index", contigcaller.DefaultOpts.ReferenceIndex,
		"opaque reference/chromosome identifier attached to every emitted contig")
	flag.IntVar(&opts.MaxEvidenceSupportIntervalWidth, "max-evidence-support-interval-width",
		contigcaller.DefaultOpts.MaxEvidenceSupportIntervalWidth,
		"upper bound on how far a single piece of evidence can reach past the node it directly supports")
	flag.IntVar(&opts.MaxAnchorLength, "max-anchor-length", contigcaller.DefaultOpts.MaxAnchorLength,
		"floor on anchor-extension length")
	flag.Float64Var(&opts.MaxExpectedBreakendLengthMultiple, "max-expected-breakend-length-multiple",
		contigcaller.DefaultOpts.MaxExpectedBreakendLengthMultiple,
		"multiple of fragment-size used as the misassembly-detection length threshold")
	flag.Float64Var(&opts.RetainWidthMultiple, "retain-width-multiple", contigcaller.DefaultOpts.RetainWidthMultiple,
		"multiple of fragment-size giving the retain width; a forced flush begins once the live graph trails the frontier by more than retain plus flush width")
	flag.Float64Var(&opts.FlushWidthMultiple, "flush-width-multiple", contigcaller.DefaultOpts.FlushWidthMultiple,
		"multiple of fragment-size cleared by a forced flush")
	flag.IntVar(&opts.AnchorLength, "anchor-length", contigcaller.DefaultOpts.AnchorLength,
		"minimum anchor bases (must not exceed max-anchor-length); not consulted when classifying contigs")
	flag.IntVar(&opts.FragmentSize, "fragment-size", contigcaller.DefaultOpts.FragmentSize,
		"nominal fragment/insert size")
	flag.BoolVar(&opts.RemoveMisassembledPartialContigsDuringAssembly, "remove-misassembled-partial-contigs",
		contigcaller.DefaultOpts.RemoveMisassembledPartialContigsDuringAssembly,
		"force-call partial contigs found to contain a k-mer repeat as each node loads, rather than waiting for them to become callable")
	flag.BoolVar(&opts.EnableSanityChecks, "enable-sanity-checks", contigcaller.DefaultOpts.EnableSanityChecks,
		"run MemoContigCaller's expensive debug-only self check once per pass of the assembler's pull loop")
	flag.Float64Var(&opts.QualityScale, "quality-scale", contigcaller.DefaultOpts.QualityScale,
		"scale applied to per-offset k-mer weight when synthesizing base qualities")
}

func main() {
	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if *inputFlag == "" || *outputFlag == "" {
		log.Fatal("-input and -output are required")
	}

	in, err := file.Open(ctx, *inputFlag)
	if err != nil {
		log.Panicf("open %v: %v", *inputFlag, err)
	}
	out, err := file.Create(ctx, *outputFlag)
	if err != nil {
		log.Panicf("create %v: %v", *outputFlag, err)
	}

	source := newNDJSONSource(in.Reader(ctx))
	w := bufio.NewWriter(out.Writer(ctx))

	stats := run(ctx, source, w)

	if err := w.Flush(); err != nil {
		log.Panicf("flush %v: %v", *outputFlag, err)
	}
	if err := out.Close(ctx); err != nil {
		log.Panicf("close %v: %v", *outputFlag, err)
	}
	if err := in.Close(ctx); err != nil {
		log.Panicf("close %v: %v", *inputFlag, err)
	}

	log.Printf("Stats: %+v", stats)
	log.Printf("All done")
}

// run drives the Assembler to completion, writing one NDJSON line per
// emitted contig, and returns the accumulated run stats.
func run(ctx context.Context, source contigcaller.PositionalKmerNodeSource, w io.Writer) contigcaller.Stats {
	asm, err := contigcaller.NewAssembler(source, opts)
	if err != nil {
		log.Panicf("NewAssembler: %v", err)
	}
	enc := json.NewEncoder(w)
	for {
		contig, ok, err := asm.Next(ctx)
		if err != nil {
			log.Panicf("Next: %v", err)
		}
		if !ok {
			break
		}
		if err := enc.Encode(wireContigFrom(contig)); err != nil {
			log.Panicf("encode contig: %v", err)
		}
	}
	return asm.Stats()
}
