package models

import (
	"database/sql"
	"time"
)

// Record is one monthly observation at a hotspot coordinate. Covariates and
// the target are nullable: values that were missing or non-numeric in the
// source file are stored as NULL and filled during feature derivation.
type Record struct {
	ID           int64
	Latitude     float64
	Longitude    float64
	Month        time.Time // first day of the month, UTC
	SST          sql.NullFloat64
	Chl          sql.NullFloat64
	SSH          sql.NullFloat64
	Abundance    sql.NullFloat64
	QualityFlags string
	IngestRunID  sql.NullInt64
	CreatedAt    time.Time
}

// HotspotMeta is a row of the hotspot reference table. It is only used to
// geo-locate forecasts; feature derivation never reads it.
type HotspotMeta struct {
	HotspotID  int         `json:"hotspot_id"`
	Latitude   float64     `json:"latitude"`
	Longitude  float64     `json:"longitude"`
	Attributes []Attribute `json:"attributes,omitempty"` // extra columns, in file order
}

type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attr returns the attribute value for name, or "" if absent.
func (h HotspotMeta) Attr(name string) string {
	for _, a := range h.Attributes {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}
