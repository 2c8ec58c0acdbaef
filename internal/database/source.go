package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"fpdataset/internal/types"
)

// FetchRange returns the collectxy rows with start <= id < end, ordered by
// id. Each row carries the grid cell computed by the store with the same
// transform as grid.Matcher.
func (d *Database) FetchRange(ctx context.Context, start, end int64) ([]types.Location, error) {
	query := d.dialect.rebind(fmt.Sprintf(`
		SELECT
			id, latitude, longtitude, lcellid, wmac, wrssi, lpciKey,
			%s + 1 AS x_id,
			%s + 1 AS y_id
		FROM (
			SELECT
				id, latitude, longtitude, lcellid, wmac, wrssi, lpciKey,
				(longtitude - ?) / ? AS gx,
				(latitude - ?) / ? AS gy
			FROM collectxy
			WHERE id >= ? AND id < ?
		) t
		ORDER BY id
	`, d.dialect.floor("gx"), d.dialect.floor("gy")))

	rows, err := d.db.QueryContext(ctx, query,
		d.grid.OriginX, d.grid.PitchX,
		d.grid.OriginY, d.grid.PitchY,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collectxy [%d, %d): %w", start, end, err)
	}
	defer rows.Close()

	var locations []types.Location
	for rows.Next() {
		var (
			loc                        types.Location
			lat, lon, xID, yID         sql.NullString
			lcellid, wmac, wrssi, ipci sql.NullString
		)
		if err := rows.Scan(&loc.ID, &lat, &lon, &lcellid, &wmac, &wrssi, &ipci, &xID, &yID); err != nil {
			return nil, fmt.Errorf("failed to scan collectxy row: %w", err)
		}

		if loc.Latitude, err = parseDecimal(loc.ID, "latitude", lat); err != nil {
			return nil, err
		}
		if loc.Longitude, err = parseDecimal(loc.ID, "longtitude", lon); err != nil {
			return nil, err
		}
		if loc.GridCell.XID, err = parseCellID(loc.ID, "x_id", xID); err != nil {
			return nil, err
		}
		if loc.GridCell.YID, err = parseCellID(loc.ID, "y_id", yID); err != nil {
			return nil, err
		}
		loc.LCellID = lcellid.String
		loc.WMAC = wmac.String
		loc.WRSSI = wrssi.String
		loc.IPCIKey = ipci.String

		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read collectxy rows: %w", err)
	}

	return locations, nil
}

// FetchBuildingCandidates returns buildings whose bounding box overlaps the
// square of half-width margin centred on (lat, lon). It is a coarse filter;
// callers must confirm containment themselves.
func (d *Database) FetchBuildingCandidates(ctx context.Context, lat, lon, margin float64) ([]types.Building, error) {
	query := d.dialect.rebind(`
		SELECT
			uid, height, hstare, lstare,
			minX, maxX, minY, maxY
		FROM building
		WHERE minX <= ? AND maxX >= ?
		  AND minY <= ? AND maxY >= ?
	`)

	rows, err := d.db.QueryContext(ctx, query,
		lon+margin, lon-margin,
		lat+margin, lat-margin,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query building candidates: %w", err)
	}
	defer rows.Close()

	var buildings []types.Building
	for rows.Next() {
		var (
			uid, hstare, lstare    sql.NullString
			height                 sql.NullString
			minX, maxX, minY, maxY sql.NullString
		)
		if err := rows.Scan(&uid, &height, &hstare, &lstare, &minX, &maxX, &minY, &maxY); err != nil {
			return nil, fmt.Errorf("failed to scan building row: %w", err)
		}

		b := types.Building{UID: uid.String, HStare: hstare.String, LStare: lstare.String}
		if height.Valid {
			h, err := strconv.ParseFloat(strings.TrimSpace(height.String), 64)
			if err != nil {
				return nil, fmt.Errorf("building %s: height: %w", b.UID, err)
			}
			b.Height = &h
		}
		for _, f := range []struct {
			dst  *float64
			name string
			src  sql.NullString
		}{
			{&b.MinX, "minX", minX},
			{&b.MaxX, "maxX", maxX},
			{&b.MinY, "minY", minY},
			{&b.MaxY, "maxY", maxY},
		} {
			if !f.src.Valid {
				return nil, fmt.Errorf("building %s: %s is NULL", b.UID, f.name)
			}
			if *f.dst, err = strconv.ParseFloat(strings.TrimSpace(f.src.String), 64); err != nil {
				return nil, fmt.Errorf("building %s: %s: %w", b.UID, f.name, err)
			}
		}

		buildings = append(buildings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read building rows: %w", err)
	}

	return buildings, nil
}

// Summary describes the contents of the source tables.
type Summary struct {
	MinID       int64
	MaxID       int64
	Locations   int64
	Buildings   int64
	CellIndexes int64
}

// Summary counts the rows of collectxy, building and cellidindex.
func (d *Database) Summary(ctx context.Context) (Summary, error) {
	var (
		s            Summary
		minID, maxID sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, `SELECT MIN(id), MAX(id), COUNT(*) FROM collectxy`).Scan(&minID, &maxID, &s.Locations)
	if err != nil {
		return s, fmt.Errorf("failed to summarize collectxy: %w", err)
	}
	s.MinID, s.MaxID = minID.Int64, maxID.Int64

	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM building`).Scan(&s.Buildings); err != nil {
		return s, fmt.Errorf("failed to count buildings: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cellidindex`).Scan(&s.CellIndexes); err != nil {
		return s, fmt.Errorf("failed to count cell indexes: %w", err)
	}
	return s, nil
}

// parseDecimal converts a numeric column that may arrive as a decimal string.
func parseDecimal(id int64, column string, v sql.NullString) (float64, error) {
	if !v.Valid {
		return 0, fmt.Errorf("collectxy %d: %s is NULL", id, column)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.String), 64)
	if err != nil {
		return 0, fmt.Errorf("collectxy %d: %s: %w", id, column, err)
	}
	return f, nil
}

func parseCellID(id int64, column string, v sql.NullString) (int, error) {
	f, err := parseDecimal(id, column, v)
	if err != nil {
		return 0, err
	}
	return int(math.Floor(f)), nil
}
