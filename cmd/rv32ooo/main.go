// Package main provides the entry point for rv32ooo, a cycle-accurate
// superscalar out-of-order RV32IM simulator with Sv32 virtual memory.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/rv32ooo/internal/backend"
	"github.com/sarchlab/rv32ooo/internal/frontend"
	"github.com/sarchlab/rv32ooo/internal/simctx"
	"github.com/sarchlab/rv32ooo/internal/simlog"
	"github.com/sarchlab/rv32ooo/loader"
)

var (
	maxCycles = flag.Uint64("max-cycles", 100_000_000, "abort after this many cycles with no halt")
	verbose   = flag.Bool("v", false, "verbose per-cycle tracing")
	seed      = flag.Int64("seed", 1, "deterministic RNG seed (cache miss jitter)")
	resetPC   = flag.Uint64("reset-pc", 0x80000000, "PC the core starts fetching from")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: rv32ooo [options] <program.elf>\n\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	exitCode := run(prog, programPath)
	os.Exit(int(exitCode))
}

func run(prog *loader.Program, programPath string) (exitCode int64) {
	ctx := simctx.New(*seed)

	for _, seg := range prog.Segments {
		for i, b := range seg.Data {
			ctx.Memory.Write8(seg.VirtAddr+uint32(i), b)
		}
		for i := uint32(len(seg.Data)); i < seg.MemSize; i++ {
			ctx.Memory.Write8(seg.VirtAddr+i, 0)
		}
	}

	cfg := backend.DefaultConfig()
	predictor := frontend.NewBimodal(1024, 256)
	core := backend.New(cfg, ctx, predictor, uint32(*resetPC))

	logLevel := simlog.LevelInfo
	if *verbose {
		logLevel = simlog.LevelTrace
	}
	core.Log = simlog.New(os.Stderr, logLevel, core.Cycle)

	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*simctx.InvariantError); ok {
				core.Log.Errorf("invariant violation: %s", ie.Error())
				exitCode = 1
				return
			}
			panic(r)
		}
	}()

	for !core.Halted() && core.Cycle() < *maxCycles {
		core.Tick()
	}

	if !core.Halted() {
		fmt.Fprintf(os.Stderr, "rv32ooo: %s did not halt within %d cycles\n", programPath, *maxCycles)
		return 1
	}

	if *verbose {
		fmt.Printf("\nProgram: %s\n", programPath)
		fmt.Printf("Cycles: %d\n", core.Cycle())
		fmt.Printf("Exit code: %d\n", core.ExitCode())
	}

	return core.ExitCode()
}
