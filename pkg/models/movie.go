package models

// UploadColumns is the exact field set of a raw upload record.
var UploadColumns = []string{"title", "lead", "director", "genre", "revenue", "budget"}

// CanonicalColumns is the column order of the canonical dataset table.
var CanonicalColumns = []string{
	"title",
	"lead",
	"director",
	"genre",
	"revenue",
	"budget",
	"profit_ratio",
	"director_average_profit_ratio",
	"lead_average_profit_ratio",
	"lead_worked_in_genre_count",
	"director_worked_in_genre_count",
	"director_worked_with_lead_count",
}

// RawUploadRecord is one row of an uploaded batch, keyed by column name.
// Source and Line locate the row for rejection reports.
type RawUploadRecord struct {
	Source string            `json:"source"`
	Line   int               `json:"line"`
	Fields map[string]string `json:"fields"`
}

func (r RawUploadRecord) Title() string {
	return r.Fields["title"]
}

// Candidate is an upload row that survived ingestion filtering.
// Categorical values are still free text.
type Candidate struct {
	Title    string  `json:"title"`
	Lead     string  `json:"lead"`
	Director string  `json:"director"`
	Genre    string  `json:"genre"`
	Revenue  float64 `json:"revenue"`
	Budget   float64 `json:"budget"`
	Source   string  `json:"source,omitempty"`
	Line     int     `json:"line,omitempty"`
}

// CanonicalRecord is one row of the canonical dataset. Everything after
// Revenue is derived from the full dataset by the feature deriver.
type CanonicalRecord struct {
	Title      string  `json:"title"`
	LeadID     int     `json:"lead"`
	DirectorID int     `json:"director"`
	GenreID    int     `json:"genre"`
	Revenue    float64 `json:"revenue"`
	Budget     float64 `json:"budget"`

	ProfitRatio                 float64 `json:"profit_ratio"`
	DirectorAverageProfitRatio  float64 `json:"director_average_profit_ratio"`
	LeadAverageProfitRatio      float64 `json:"lead_average_profit_ratio"`
	LeadWorkedInGenreCount      int     `json:"lead_worked_in_genre_count"`
	DirectorWorkedInGenreCount  int     `json:"director_worked_in_genre_count"`
	DirectorWorkedWithLeadCount int     `json:"director_worked_with_lead_count"`
}
