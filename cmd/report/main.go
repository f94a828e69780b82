package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ore-strategy-lab/internal/app"
	"ore-strategy-lab/internal/config"
	"ore-strategy-lab/internal/pipeline"
	"ore-strategy-lab/internal/reporting"
)

func main() {
	// Parse flags
	configPath := flag.String("config", os.Getenv("ORE_CONFIG"), "Path to YAML config file")
	outputDir := flag.String("output-dir", "", "Output directory for generated files (overrides report.output_dir)")
	recent := flag.Int("recent", reporting.DefaultRecentRounds, "Number of resolved rounds to list")
	printSummary := flag.Bool("summary", false, "Print the JSON summary to stdout instead of writing files")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Report.OutputDir = *outputDir
	}
	if cfg.Storage.Backend == config.BackendMemory {
		fmt.Fprintln(os.Stderr, "Error: the memory backend holds no stored state to report on")
		os.Exit(1)
	}

	backends, err := app.OpenBackends(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to storage: %v\n", err)
		os.Exit(1)
	}
	defer backends.Close()

	opts, err := app.PipelineOptions(cfg, backends.Stores, app.NewLogger("pipeline"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in strategy options: %v\n", err)
		os.Exit(1)
	}
	p := pipeline.New(opts)
	if err := p.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error restoring state: %v\n", err)
		os.Exit(1)
	}

	if *printSummary {
		data, err := reporting.EncodeSummary(p.Summary())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding summary: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(append(data, '\n'))
		return
	}

	gen := reporting.NewGenerator(p, backends.Stores.Outcomes).WithRecentRounds(*recent)
	if backends.EventArchive != nil {
		gen = gen.WithArchive(backends.EventArchive, backends.OutcomeArchive)
	}

	report, err := gen.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	paths, err := reporting.WriteFiles(cfg.Report.OutputDir, report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Learning report generated successfully:")
	for _, path := range paths {
		fmt.Printf("  - %s\n", path)
	}
}
