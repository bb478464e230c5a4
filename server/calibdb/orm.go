package calibdb

import "github.com/cyclopcam/dbh"

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

type Variable struct {
	Key   string `gorm:"primaryKey" json:"key"`
	Value string `json:"value"`
}

// Calibration is one completed calibration run
type Calibration struct {
	BaseModel
	CreatedAt   dbh.IntTime `json:"createdAt"`
	ClassName   string      `json:"className"`
	Axis        string      `json:"axis"`   // "width" or "height"
	Manual      bool        `json:"manual"` // Size was typed in by the user
	SizeMeters  float32     `json:"sizeMeters"`
	SpanPixels  int32       `json:"spanPixels"`
	RawEstimate float32     `json:"rawEstimate"`
	Scale       float32     `json:"scale"`
}
