package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Float is a float64 that always serializes in plain decimal notation:
// no exponent, no trailing zeros, no trailing decimal point.
type Float float64

func (f Float) String() string {
	return strconv.FormatFloat(float64(f), 'f', -1, 64)
}

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("unsupported float value %v", v)
	}
	return strconv.AppendFloat(nil, v, 'f', -1, 64), nil
}

// OutputRecord is the structured result for one location.
type OutputRecord struct {
	Input  Fingerprint `json:"input"`
	Answer Answer      `json:"answer"`
}

// Answer carries the grid cell and, when building search ran, the matched
// buildings. A nil Buildings slice means the search was disabled and the key
// is omitted; an empty non-nil slice encodes as [].
type Answer struct {
	GridCell  GridCell
	Buildings []Building
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Buildings == nil {
		return marshalJSON(struct {
			GridCell GridCell `json:"grid_cell"`
		}{a.GridCell})
	}
	return marshalJSON(struct {
		GridCell  GridCell   `json:"grid_cell"`
		Buildings []Building `json:"buildings"`
	}{a.GridCell, a.Buildings})
}

// marshalJSON encodes v without HTML escaping so nested values match the
// writer's encoder settings.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// TrainingRecord is the prompt/completion flattening of an OutputRecord.
type TrainingRecord struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// NewTrainingRecord derives the training pair from rec.
func NewTrainingRecord(rec OutputRecord) TrainingRecord {
	rssi := make([]string, len(rec.Input.WRSSI))
	for i, v := range rec.Input.WRSSI {
		rssi[i] = v.String()
	}
	prompt := fmt.Sprintf("wmac=%s wrssi=%s lcellid=%s ipcikey=%s",
		strings.Join(rec.Input.WMAC, ","),
		strings.Join(rssi, ","),
		strings.Join(rec.Input.LCellID, ","),
		strings.Join(rec.Input.IPCIKey, ","),
	)
	return TrainingRecord{
		Prompt:     prompt,
		Completion: rec.Answer.GridCell.String(),
	}
}
