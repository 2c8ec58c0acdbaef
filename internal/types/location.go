package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Location holds one collectxy row after the data source has normalized it.
// Fingerprint columns are kept as their raw comma-delimited strings; use
// Fingerprint to split them.
type Location struct {
	ID        int64
	Latitude  float64
	Longitude float64

	LCellID string
	WMAC    string
	WRSSI   string
	IPCIKey string

	// GridCell is the cell computed by the store alongside the row.
	GridCell GridCell
}

// GridCell identifies one fixed-pitch cell of the coverage grid.
type GridCell struct {
	XID int `json:"x_id"`
	YID int `json:"y_id"`
}

func (c GridCell) String() string {
	return fmt.Sprintf("x_id=%d,y_id=%d", c.XID, c.YID)
}

// Fingerprint is the parsed radio observation of a location.
type Fingerprint struct {
	LCellID []string `json:"lcellid"`
	WMAC    []string `json:"wmac"`
	WRSSI   []Float  `json:"wrssi"`
	IPCIKey []string `json:"ipcikey"`
}

// Fingerprint splits the raw columns. An empty column yields an empty,
// non-nil slice so it encodes as [] rather than null.
func (l Location) Fingerprint() (Fingerprint, error) {
	rssi, err := splitFloats(l.WRSSI)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("location %d: wrssi: %w", l.ID, err)
	}
	return Fingerprint{
		LCellID: splitList(l.LCellID),
		WMAC:    splitList(l.WMAC),
		WRSSI:   rssi,
		IPCIKey: splitList(l.IPCIKey),
	}, nil
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func splitFloats(s string) ([]Float, error) {
	parts := splitList(s)
	out := make([]Float, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, Float(v))
	}
	return out, nil
}
