package types

// Building is one row of the building table. MinX/MaxX are longitudes and
// MinY/MaxY latitudes. Height is nil when the column is NULL.
type Building struct {
	UID    string
	Height *float64
	HStare string
	LStare string

	MinX float64
	MaxX float64
	MinY float64
	MaxY float64
}

// ContainsPoint reports whether (lat, lon) lies inside the building's
// bounding box, edges included.
func (b Building) ContainsPoint(lat, lon float64) bool {
	return b.MinX <= lon && lon <= b.MaxX &&
		b.MinY <= lat && lat <= b.MaxY
}

func (b Building) MarshalJSON() ([]byte, error) {
	return marshalJSON(struct {
		UID    string `json:"uid"`
		Height *Float `json:"height"`
		HStare string `json:"hstare"`
		LStare string `json:"lstare"`
		MinX   Float  `json:"min_x"`
		MaxX   Float  `json:"max_x"`
		MinY   Float  `json:"min_y"`
		MaxY   Float  `json:"max_y"`
	}{
		UID:    b.UID,
		Height: (*Float)(b.Height),
		HStare: b.HStare,
		LStare: b.LStare,
		MinX:   Float(b.MinX),
		MaxX:   Float(b.MaxX),
		MinY:   Float(b.MinY),
		MaxY:   Float(b.MaxY),
	})
}
