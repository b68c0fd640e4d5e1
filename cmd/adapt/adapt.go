// Command adapt runs the full MLLR pipeline against one acoustic model: load,
// cluster the means into regression classes, replay a JSONL stream of
// decoded Results, solve, and write the adapted means and transform files.
// Grounded on the teacher's cmd/score: flag-driven, easy.Timed around the
// expensive phases, a bufio.Scanner line loop over the input stream.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/kho/easy"

	sphinxadapt "github.com/kho/sphinxadapt"
)

func main() {
	var args struct {
		Location        string `name:"location" usage:"model directory"`
		ModelDefinition string `name:"mdef" usage:"mdef filename or path, relative to location unless absolute"`
		DataLocation    string `name:"data" usage:"subdirectory of location holding means/variances/etc"`
		Results         string `name:"results" usage:"JSONL file of decoded Results (one per line); empty means stdin"`
		Classes         int    `name:"classes" usage:"number of MLLR regression classes"`
		TransformIn     string `name:"transform_in" usage:"seed from this pre-computed MLLR transform file instead of estimating"`
		OutMeans        string `name:"out_means" usage:"path to write the adapted means file"`
		OutTransform    string `name:"out_transform" usage:"path to write the estimated MLLR transform file"`
	}
	args.Classes = 1
	easy.ParseFlagsAndArgs(&args)
	if args.Location == "" || args.OutMeans == "" {
		fmt.Fprintln(os.Stderr, "usage: adapt --location=<model dir> --out_means=<path> [flags]")
		os.Exit(2)
	}

	cfg := sphinxadapt.DefaultConfig(args.Location)
	if args.ModelDefinition != "" {
		cfg.ModelDefinition = args.ModelDefinition
	}
	if args.DataLocation != "" {
		cfg.DataLocation = args.DataLocation
	}

	var store *sphinxadapt.ModelStore
	glog.Infof("load took %v", easy.Timed(func() {
		var err error
		store, err = sphinxadapt.Load(cfg)
		if err != nil {
			glog.Fatalf("loading %s: %v", args.Location, err)
		}
	}))

	clusterMap := sphinxadapt.Cluster(store.Means, args.Classes)
	adaptation := sphinxadapt.NewAdaptation(store, clusterMap)

	if args.TransformIn != "" {
		transforms, err := sphinxadapt.LoadTransformFile(args.TransformIn)
		if err != nil {
			glog.Fatalf("loading transform file %s: %v", args.TransformIn, err)
		}
		if err := adaptation.SeedFromTransforms(transforms); err != nil {
			glog.Fatalf("seeding transforms: %v", err)
		}
	} else {
		in := os.Stdin
		if args.Results != "" {
			f, err := os.Open(args.Results)
			if err != nil {
				glog.Fatalf("opening %s: %v", args.Results, err)
			}
			defer f.Close()
			in = f
		}

		var numResults, numTokens int
		glog.Infof("collecting took %v", easy.Timed(func() {
			numResults, numTokens = collectResults(in, adaptation)
		}))
		glog.Infof("collected %d results, %d tokens", numResults, numTokens)

		if err := adaptation.Solve(); err != nil {
			glog.Fatalf("solve: %v", err)
		}
		report := adaptation.Report()
		for c := range report.Degenerate {
			if err := report.ClassError(c); err != nil {
				glog.Warningf("%v: fell back to the identity transform", err)
			}
		}
		if args.OutTransform != "" {
			if err := sphinxadapt.WriteTransformFile(args.OutTransform, adaptation.Transforms()); err != nil {
				glog.Fatalf("writing transform file: %v", err)
			}
		}
	}

	if err := adaptation.Apply(args.OutMeans); err != nil {
		glog.Fatalf("apply: %v", err)
	}
	glog.Infof("wrote adapted means to %s", args.OutMeans)
}

// collectResults reads one JSON-encoded sphinxadapt.Result per line from in
// and drives adaptation.Collect over each.
func collectResults(in io.Reader, adaptation *sphinxadapt.Adaptation) (numResults, numTokens int) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var result sphinxadapt.Result
		if err := json.Unmarshal(line, &result); err != nil {
			glog.Fatalf("decoding result %d: %v", numResults, err)
		}
		adaptation.Collect(&result)
		numResults++
		numTokens += len(result.Tokens)
	}
	if err := scanner.Err(); err != nil {
		glog.Fatalf("reading results: %v", err)
	}
	return
}
