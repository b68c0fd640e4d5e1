// Command inspect loads an acoustic model directory and reports its pool
// sizes and HMM topology, the model-loading analogue of the teacher's
// cmd/compile: load one input, print a short report, exit.
package main

import (
	"flag"
	"fmt"
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
		NoCDUnits       bool   `name:"no_cd_units" usage:"parse but do not register triphone HMMs"`
	}
	easy.ParseFlagsAndArgs(&args)
	if args.Location == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --location=<model dir> [flags]")
		flag.Usage()
		os.Exit(2)
	}

	cfg := sphinxadapt.DefaultConfig(args.Location)
	if args.ModelDefinition != "" {
		cfg.ModelDefinition = args.ModelDefinition
	}
	if args.DataLocation != "" {
		cfg.DataLocation = args.DataLocation
	}
	cfg.UseCDUnits = !args.NoCDUnits

	var store *sphinxadapt.ModelStore
	elapsed := easy.Timed(func() {
		var err error
		store, err = sphinxadapt.Load(cfg)
		if err != nil {
			glog.Fatalf("loading %s: %v", args.Location, err)
		}
	})
	glog.Infof("load took %v", elapsed)

	fmt.Printf("senones:            %d\n", store.NumSenones())
	fmt.Printf("gaussians/senone:   %d\n", store.NumGaussians)
	fmt.Printf("means:              %d\n", store.Means.Len())
	fmt.Printf("transition matrices: %d\n", store.Transitions.Len())
	fmt.Printf("CI units:           %d\n", len(store.CIUnits))
	fmt.Printf("HMMs registered:    %d\n", store.HMMs.Len())
	fmt.Printf("feature dim:        %d\n", store.FeatureDim)
	if store.Transform != nil {
		fmt.Printf("feature transform:  %d x %d\n", store.Transform.NumRows, store.Transform.NumValues)
	} else {
		fmt.Printf("feature transform:  none\n")
	}
	for k, v := range store.Props {
		fmt.Printf("prop %s = %s\n", k, v)
	}
}
