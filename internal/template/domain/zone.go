package domain

// CoordinateSystem identifies how zone coordinates are interpreted
type CoordinateSystem string

const (
	CoordsPixel      CoordinateSystem = "pixel"
	CoordsPercentage CoordinateSystem = "percentage"
	CoordsPoints     CoordinateSystem = "points"
	CoordsNormalized CoordinateSystem = "normalized"
)

// ZoneType identifies what kind of content a zone captures
type ZoneType string

const (
	ZoneText      ZoneType = "text"
	ZoneOCR       ZoneType = "ocr"
	ZoneImage     ZoneType = "image"
	ZoneTable     ZoneType = "table"
	ZoneSignature ZoneType = "signature"
	ZoneBarcode   ZoneType = "barcode"
)

// ZoneDisplay holds presentation hints for the template editor.
// These carry no semantic weight for extraction.
type ZoneDisplay struct {
	Color       string  `json:"color,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	BorderStyle string  `json:"border_style,omitempty"`
}

// ExtractionZone is a coordinate rectangle on a specific document page
// from which a field's value is read
type ExtractionZone struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	PageNumber       int              `json:"page_number"`
	CoordinateSystem CoordinateSystem `json:"coordinate_system"`
	Type             ZoneType         `json:"type"`

	Priority int  `json:"priority"`
	IsActive bool `json:"is_active"`

	// Tolerances are percentages applied when locating the zone
	PositionTolerance float64 `json:"position_tolerance,omitempty"`
	SizeTolerance     float64 `json:"size_tolerance,omitempty"`

	Display ZoneDisplay `json:"display,omitempty"`
}

// Overlaps reports whether two zones on the same page intersect
func (z ExtractionZone) Overlaps(other ExtractionZone) bool {
	if z.PageNumber != other.PageNumber {
		return false
	}
	if z.X+z.Width <= other.X || other.X+other.Width <= z.X {
		return false
	}
	if z.Y+z.Height <= other.Y || other.Y+other.Height <= z.Y {
		return false
	}
	return true
}
