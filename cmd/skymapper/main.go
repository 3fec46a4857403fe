package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"skymapper/internal/models"
	"skymapper/pkg/calibration"
	"skymapper/pkg/config"
	"skymapper/pkg/grid"
	"skymapper/pkg/mapmaking"
	"skymapper/pkg/pointing"
	"skymapper/pkg/source"
	"skymapper/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "skymapper.yaml", "Run configuration YAML file")
	recordsPath := flag.String("records", "", "JSON-lines scan record file (overrides config)")
	outputPath := flag.String("output", "", "Output map JPEG (overrides config)")
	demo := flag.Bool("demo", false, "Run on a built-in synthetic scan instead of a records file")
	genConfig := flag.Bool("gen-config", false, "Write a default configuration file and exit")
	flag.Parse()

	if *genConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *recordsPath != "" {
		cfg.Files.Records = *recordsPath
	}
	if *outputPath != "" {
		cfg.Output.MapImage = *outputPath
	}
	if *demo && len(cfg.Detectors) == 0 {
		cfg.Detectors = demoDetectors()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("SKYMAPPER - FILTER-AND-BIN MAPMAKER")
	fmt.Println("Bins calibrated detector timestreams into a sky map")
	fmt.Println("================================")

	params, err := buildParams(cfg, *demo)
	if err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}

	mapmaker, err := mapmaking.NewMapmaker(params)
	if err != nil {
		log.Fatalf("Failed to set up mapmaker: %v", err)
	}

	src, closeSrc, err := buildSource(cfg, params, *demo)
	if err != nil {
		log.Fatalf("Failed to open record source: %v", err)
	}
	if closeSrc != nil {
		defer closeSrc()
	}

	fmt.Printf("Mapping %d detector(s) onto a %dx%d pixel grid...\n",
		len(params.Detectors),
		mapmaker.Accumulator().Grid().NumDec(),
		mapmaker.Accumulator().Grid().NumRA())

	startTime := time.Now()
	if err := mapmaker.Process(src); err != nil {
		log.Fatalf("Mapmaking failed: %v", err)
	}
	processingTime := time.Since(startTime)

	summary := mapmaker.Summarize()
	fmt.Printf("\nMapmaking completed in %.2f seconds\n", processingTime.Seconds())
	fmt.Printf("Records read:      %d\n", summary.RecordsRead)
	fmt.Printf("Records binned:    %d\n", summary.RecordsBinned)
	fmt.Printf("Samples binned:    %d\n", summary.SamplesBinned)
	fmt.Printf("Samples off-grid:  %d\n", summary.SamplesRejected)
	fmt.Printf("Pixel coverage:    %d of %d (%.1f%%)\n",
		summary.PixelsHit, summary.PixelsTotal,
		100*float64(summary.PixelsHit)/float64(summary.PixelsTotal))

	if cfg.Output.MapImage != "" {
		if err := visualization.NewRenderer(mapmaker.Map()).SaveJPEG(cfg.Output.MapImage); err != nil {
			log.Fatalf("Failed to save map image: %v", err)
		}
		fmt.Printf("Map image saved to: %s\n", cfg.Output.MapImage)
	}
}

// buildParams translates the file configuration into mapmaking parameters,
// loading the offsets and calibration inputs.
func buildParams(cfg *config.Config, demo bool) (*mapmaking.Params, error) {
	params := &mapmaking.Params{
		Grid: grid.Spec{
			CenterRA:  cfg.Grid.CenterRA,
			CenterDec: cfg.Grid.CenterDec,
			ExtentRA:  cfg.Grid.ExtentRA,
			ExtentDec: cfg.Grid.ExtentDec,
			ResRA:     cfg.Grid.ResRA,
			ResDec:    cfg.Grid.ResDec,
		},
		Detectors:     cfg.Detectors,
		SourceRA:      cfg.Filter.SourceRA,
		SourceDec:     cfg.Filter.SourceDec,
		MaskRadius:    cfg.Filter.Radius,
		SnapshotEvery: cfg.Output.SnapshotEvery,
		SnapshotDir:   cfg.Output.SnapshotDir,
		Verbose:       cfg.Output.Verbose,
	}

	switch cfg.Filter.Mode {
	case config.FilterNone:
		params.Filter = mapmaking.FilterNone
	case config.FilterMean:
		params.Filter = mapmaking.FilterMean
	case config.FilterMasked:
		params.Filter = mapmaking.FilterMasked
	}

	if demo {
		params.Offsets = demoOffsets()
		store, err := calibration.NewStore("mK_CMB", demoGains())
		if err != nil {
			return nil, err
		}
		params.Calibration = store
		return params, nil
	}

	offsets, err := pointing.LoadOffsets(cfg.Files.Offsets)
	if err != nil {
		return nil, err
	}
	params.Offsets = offsets

	store, err := calibration.Load(cfg.Files.Calibration)
	if err != nil {
		return nil, err
	}
	params.Calibration = store
	return params, nil
}

// buildSource opens the configured record stream: the built-in synthetic
// raster scan in demo mode, a JSON-lines file otherwise.
func buildSource(cfg *config.Config, params *mapmaking.Params, demo bool) (source.Source, func() error, error) {
	if demo {
		gen, err := source.NewSynthetic(source.SyntheticParams{
			Detectors:        params.Offsets,
			Gains:            demoGains(),
			Records:          100,
			SamplesPerRecord: 200,
			CenterRA:         cfg.Grid.CenterRA,
			CenterDec:        cfg.Grid.CenterDec,
			ExtentRA:         cfg.Grid.ExtentRA * 1.25,
			ExtentDec:        cfg.Grid.ExtentDec * 1.25,
			Background:       2.0,
			SourceRA:         cfg.Grid.CenterRA,
			SourceDec:        cfg.Grid.CenterDec,
			SourceAmplitude:  75,
			SourceSigma:      cfg.Grid.ExtentRA / 12,
			NoiseSigma:       0.5,
			Seed:             1,
		})
		if err != nil {
			return nil, nil, err
		}
		fmt.Println("Demo mode: generating a synthetic raster scan with a central point source")
		return gen, nil, nil
	}

	if cfg.Files.Records == "" {
		return nil, nil, fmt.Errorf("no records file configured (set files.records or use -records)")
	}
	fs, err := source.OpenFile(cfg.Files.Records)
	if err != nil {
		return nil, nil, err
	}
	return fs, fs.Close, nil
}

// The demo focal plane: four detectors around the boresight.

func demoDetectors() []string {
	return []string{"det01", "det02", "det03", "det04"}
}

func demoOffsets() map[string]models.DetectorOffset {
	return map[string]models.DetectorOffset{
		"det01": {X: 0.02, Y: 0.02},
		"det02": {X: -0.02, Y: 0.02},
		"det03": {X: 0.02, Y: -0.02},
		"det04": {X: -0.02, Y: -0.02},
	}
}

func demoGains() map[string]float64 {
	return map[string]float64{
		"det01": 0.0121,
		"det02": 0.0119,
		"det03": 0.0125,
		"det04": 0.0118,
	}
}
