package models

// Recommendation is an analyst rating entry. JSON keys follow the shape the
// frontend has always consumed.
type Recommendation struct {
	Firm      string `json:"Firm"`
	ToGrade   string `json:"To_Grade"`
	FromGrade string `json:"From_Grade,omitempty"`
	Action    string `json:"Action"`
	Period    string `json:"Period"`
}

// RecommendationActionSentiment marks a rating derived from news sentiment
const RecommendationActionSentiment = "sentiment"

// DefaultSentimentGrade is used when the latest article carries no label
const DefaultSentimentGrade = "Neutral"

// NewSentimentRecommendation builds a synthetic rating from a news sentiment label
func NewSentimentRecommendation(firm, label, period string) Recommendation {
	if label == "" {
		label = DefaultSentimentGrade
	}
	return Recommendation{
		Firm:    firm,
		ToGrade: label,
		Action:  RecommendationActionSentiment,
		Period:  period,
	}
}
