// Copyright 2026 The SymTensor Authors. SPDX-License-Identifier: Apache-2.0

// symtensor_info prints the registered backends and optionally smoke-tests one of
// them with a small compiled function.
//
// Usage:
//
//	symtensor_info [-backend <config>] [-smoke]
package main

import (
	"flag"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/symtensor/symtensor/backends"
	_ "github.com/symtensor/symtensor/backends/goref"
	_ "github.com/symtensor/symtensor/backends/gotensor"
	"github.com/symtensor/symtensor/graph"
	"github.com/symtensor/symtensor/link"
	"github.com/symtensor/symtensor/types/shapes"
)

var (
	flagBackend = flag.String("backend", "", fmt.Sprintf(
		"Backend configuration, \"<name>:<options>\". Defaults to $%s.", backends.ConfigEnvVar))
	flagSmoke = flag.Bool("smoke", false, "Compile and run a small function on the selected backend.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	fmt.Printf("Registered backends: %q\n", backends.List())

	var backend backends.Backend
	if *flagBackend != "" {
		backend = must.M1(backends.NewWithConfig(*flagBackend))
	} else {
		backend = must.M1(backends.New())
	}
	defer backend.Finalize()
	fmt.Printf("Selected backend: %q, %d device(s)\n", backend.Name(), backend.NumDevices())
	fmt.Printf("\t%s\n", backend.Description())

	if *flagSmoke {
		smokeTest(backend)
	}
}

// smokeTest compiles softmax over a small matrix and runs it once.
func smokeTest(backend backends.Backend) {
	linkBackend, ok := backend.(link.Backend)
	if !ok {
		klog.Exitf("backend %q does not support graph compilation", backend.Name())
	}

	shape := shapes.Make(dtypes.Float32, 2, 3)
	fmt.Printf("Smoke test: Softmax over %s (%s)\n", shape, humanize.Bytes(uint64(shape.Memory())))

	x := graph.Input("x", shape)
	fn := must.M1(link.NewFunction(
		[]*graph.Value{x},
		[]*graph.Value{graph.Softmax(x, -1)},
		link.WithName("smoke"),
		link.WithBackend(linkBackend)))
	outputs := must.M1(fn.Call([][]float32{{1, 2, 3}, {4, 5, 6}}))
	fmt.Printf("\tsoftmax(x) = %v\n", outputs[0].Value())
}
