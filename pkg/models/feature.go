package models

// FeatureNames is the model's training-time feature contract. The order
// must match the columns the regression model was fitted on.
var FeatureNames = [6]string{
	"budget",
	"director_average_profit_ratio",
	"lead_average_profit_ratio",
	"lead_worked_in_genre_count",
	"director_worked_in_genre_count",
	"director_worked_with_lead_count",
}

// FeatureVector is the six-number input of the profit-ratio model,
// ordered as FeatureNames.
type FeatureVector [6]float64

// FeatureVectorOf extracts the training features of a canonical record.
func FeatureVectorOf(r CanonicalRecord) FeatureVector {
	return FeatureVector{
		r.Budget,
		r.DirectorAverageProfitRatio,
		r.LeadAverageProfitRatio,
		float64(r.LeadWorkedInGenreCount),
		float64(r.DirectorWorkedInGenreCount),
		float64(r.DirectorWorkedWithLeadCount),
	}
}
