package models

import "strings"

// Dimension names one categorical field. The string value doubles as the
// column name in upload, canonical and dictionary tables.
type Dimension string

const (
	DimensionLead     Dimension = "lead"
	DimensionDirector Dimension = "director"
	DimensionGenre    Dimension = "genre"
)

// Dimensions lists every categorical dimension in a fixed order.
var Dimensions = []Dimension{DimensionLead, DimensionDirector, DimensionGenre}

func ParseDimension(s string) (Dimension, bool) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Dimensions {
		if d == known {
			return d, true
		}
	}
	return "", false
}

// DictionaryEntry is one row of a dictionary snapshot table.
type DictionaryEntry struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
}
