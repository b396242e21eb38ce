// Package main runs the scripted operator drills headless and reports the verdicts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MRamiBalles/ChernOS/internal/drill"
	"github.com/MRamiBalles/ChernOS/internal/platform/config"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
)

func main() {
	seed := flag.Uint64("seed", drill.DefaultSeed, "Random seed for every drill")
	only := flag.String("drill", "", "Run a single drill by name")
	verbose := flag.Bool("v", false, "Print the operator log of failed drills")
	configPath := flag.String("config", "", "Take the seed from simulation.seed in this CUE file")
	flag.Parse()

	if *configPath != "" {
		var configured uint64
		if err := config.Lookup(*configPath, "simulation.seed", &configured); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v (using seed %d)\n", err, *seed)
		}
		// Zero means time-based there; keep the flag seed.
		if configured != 0 {
			*seed = configured
		}
	}

	fmt.Println("ChernOS 2.0 - OPERATOR DRILL SUITE")
	fmt.Println(strings.Repeat("=", 48))

	drills := drill.Catalog()
	if *only != "" {
		d, ok := drill.Find(*only)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown drill %q\n", *only)
			os.Exit(2)
		}
		drills = []drill.Drill{d}
	}

	log := logger.NewNop()
	if *verbose {
		log = logger.NewLogger()
	}
	runner := drill.NewRunner(log)
	runner.Seed = *seed

	passed, failed := 0, 0
	for _, res := range runner.RunAll(context.Background(), drills) {
		if res.Passed {
			passed++
			fmt.Printf("PASS  %-22s (%v)\n", res.Drill, res.Elapsed.Round(time.Microsecond))
			continue
		}
		failed++
		fmt.Printf("FAIL  %-22s (%v)\n", res.Drill, res.Elapsed.Round(time.Microsecond))
		for _, f := range res.Failures {
			fmt.Printf("      - %s\n", f)
		}
		if *verbose {
			for _, line := range res.Outcome.Log {
				fmt.Printf("      | %s\n", line)
			}
		}
	}

	fmt.Println(strings.Repeat("=", 48))
	fmt.Printf("Passed: %d  Failed: %d  (seed %d)\n", passed, failed, *seed)
	if failed > 0 {
		os.Exit(1)
	}
}
