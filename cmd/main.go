package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"fpdataset/internal/config"
	"fpdataset/internal/database"
	"fpdataset/internal/grid"
	"fpdataset/internal/monitoring"
	"fpdataset/internal/processor"
	"fpdataset/internal/report"
	"fpdataset/internal/spatial"
)

// defaultOutput is also used by the short "fpdataset <start_id> <end_id>" form.
var defaultOutput = filepath.Join("output", "result.jsonl")

type options struct {
	configPath string
	start, end int64
	hasRange   bool
	output     string
	report     string
	footprints string
	migrate    bool
	check      bool
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("fpdataset: %v", err)
	}
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("fpdataset", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: fpdataset [flags] [<start_id> <end_id>]\n")
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.configPath, "config", config.DefaultConfigPath, "path to the YAML configuration")
	start := fs.Int64("start-id", 0, "first collectxy id (inclusive)")
	end := fs.Int64("end-id", 0, "last collectxy id (exclusive)")
	fs.StringVar(&opts.output, "output", defaultOutput, "output JSONL path; training data goes next to it")
	fs.StringVar(&opts.report, "report", "", "optional xlsx report path")
	fs.StringVar(&opts.footprints, "footprints", "", "building footprint shapefile (overrides processor.footprints)")
	fs.BoolVar(&opts.migrate, "migrate", false, "create the source schema and indexes (sqlite, postgres, mysql)")
	fs.BoolVar(&opts.check, "check", false, "print a summary of the source tables")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	switch {
	case set["start-id"] || set["end-id"]:
		if !set["start-id"] || !set["end-id"] {
			return opts, fmt.Errorf("-start-id and -end-id must be given together")
		}
		if fs.NArg() > 0 {
			return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
		}
		opts.start, opts.end, opts.hasRange = *start, *end, true
	case fs.NArg() == 2:
		s, err := strconv.ParseInt(fs.Arg(0), 10, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid start id %q: %w", fs.Arg(0), err)
		}
		e, err := strconv.ParseInt(fs.Arg(1), 10, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid end id %q: %w", fs.Arg(1), err)
		}
		opts.start, opts.end, opts.hasRange = s, e, true
	case fs.NArg() != 0:
		fs.Usage()
		return opts, fmt.Errorf("expected <start_id> <end_id>, got %d arguments", fs.NArg())
	}

	if !opts.hasRange && !opts.migrate && !opts.check {
		fs.Usage()
		return opts, fmt.Errorf("an id range is required unless -migrate or -check is given")
	}
	if opts.hasRange && opts.end < opts.start {
		return opts, fmt.Errorf("%w: end %d is before start %d", processor.ErrInvalidRange, opts.end, opts.start)
	}
	return opts, nil
}

func run(ctx context.Context, opts options, stdout io.Writer, stderr *os.File) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.footprints != "" {
		cfg.Processor.Footprints = opts.footprints
	}
	pc := cfg.Processor

	g := grid.NewMatcher(pc.GridLevel)
	db, err := database.NewDatabase(cfg.Database, g.Spec())
	if err != nil {
		return err
	}
	defer db.Close()

	if opts.migrate {
		if err := db.MigrateUp(); err != nil {
			return err
		}
	}
	if opts.check {
		if err := printCheck(ctx, stdout, db, cfg); err != nil {
			return err
		}
	}
	if !opts.hasRange {
		return nil
	}

	var footprints *spatial.Footprints
	if pc.BuildingSearch && pc.BuildingPreciseCheck && pc.Footprints != "" {
		footprints, err = spatial.LoadFootprints(pc.Footprints, pc.FootprintUIDField)
		if err != nil {
			return err
		}
		monitoring.Logf("Loaded %d building footprints from %s", footprints.Len(), pc.Footprints)
	}

	cacheSize := 0
	if pc.CacheEnabled {
		cacheSize = pc.CacheSize
	}
	matcher := spatial.NewMatcher(db, g, spatial.Options{
		Margin:       pc.SpatialMargin,
		PreciseCheck: pc.BuildingPreciseCheck,
		Footprints:   footprints,
		CacheSize:    cacheSize,
	})

	progress := report.NewProgress(stderr, opts.start, opts.end)
	proc := processor.New(db, g, matcher, processor.Config{
		BatchSize:      pc.BatchSize,
		BuildingSearch: pc.BuildingSearch,
		OnBatch:        progress.Update,
	})

	st, err := proc.ProcessToFile(ctx, opts.start, opts.end, opts.output)
	progress.Done()
	if err != nil {
		return fmt.Errorf("run %s: %w", st.RunID, err)
	}

	if err := report.WriteText(stdout, st); err != nil {
		return err
	}
	if opts.report != "" {
		if err := report.WriteWorkbook(opts.report, st); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Report written to %s\n", opts.report)
	}
	return nil
}
