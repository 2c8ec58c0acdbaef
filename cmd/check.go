package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"fpdataset/internal/config"
	"fpdataset/internal/database"
)

// printCheck prints the row counts of the source tables and the effective
// processor settings.
func printCheck(ctx context.Context, w io.Writer, db *database.Database, cfg *config.Config) error {
	s, err := db.Summary(ctx)
	if err != nil {
		return err
	}
	pc := cfg.Processor

	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "Driver            : %s\n", cfg.Database.Driver)
	fmt.Fprintf(w, "Collectxy records : %d\n", s.Locations)
	if s.Locations > 0 {
		fmt.Fprintf(w, "  ID range        : %d - %d\n", s.MinID, s.MaxID)
	}
	fmt.Fprintf(w, "Buildings         : %d\n", s.Buildings)
	fmt.Fprintf(w, "Cell index rows   : %d\n", s.CellIndexes)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Batch size        : %d\n", pc.BatchSize)
	fmt.Fprintf(w, "Spatial margin    : %g\n", pc.SpatialMargin)
	fmt.Fprintf(w, "Building search   : %v (precise check %v)\n", pc.BuildingSearch, pc.BuildingPreciseCheck)
	fmt.Fprintf(w, "Cell index type   : %s\n", pc.CellIndexType)
	fmt.Fprintf(w, "Candidate cache   : %v (%d entries)\n", pc.CacheEnabled, pc.CacheSize)
	fmt.Fprintf(w, "Grid level        : %d\n", pc.GridLevel)
	fmt.Fprintln(w, strings.Repeat("-", 80))
	return nil
}
