package ingest

import (
	"encoding/json"

	"github.com/lox/squidcast/internal/models"
)

const (
	FlagSSTOutOfRange     = "sst_out_of_range"
	FlagChlNegative       = "chl_negative"
	FlagSSHOutOfRange     = "ssh_out_of_range"
	FlagAbundanceNegative = "abundance_negative"
)

// ValidateRecord flags implausible values. Values are stored unchanged.
func ValidateRecord(r *models.Record) []string {
	var flags []string

	if r.SST.Valid {
		if r.SST.Float64 < -2 || r.SST.Float64 > 40 {
			flags = append(flags, FlagSSTOutOfRange)
		}
	}

	if r.Chl.Valid && r.Chl.Float64 < 0 {
		flags = append(flags, FlagChlNegative)
	}

	// metres above the geoid
	if r.SSH.Valid {
		if r.SSH.Float64 < -3 || r.SSH.Float64 > 3 {
			flags = append(flags, FlagSSHOutOfRange)
		}
	}

	if r.Abundance.Valid && r.Abundance.Float64 < 0 {
		flags = append(flags, FlagAbundanceNegative)
	}

	return flags
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
