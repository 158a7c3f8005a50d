package episode

import "github.com/frothly/episode-mesh/internal/apiversion"

const (
	SentimentPositive = "Positive"
	SentimentNegative = "Negative"

	LookupNormal = "Normal"
	LookupBroken = "Broken"
)

// Status is the aggregate health of the mesh as seen through the designated dependent.
type Status struct {
	ReviewSentiment  string `json:"ReviewSentiment"`
	UserLookupStatus string `json:"UserLookupStatus"`
}

// Classify maps the designated dependent's version to a Status.
func Classify(v apiversion.Version) Status {
	if v.Degraded() {
		return Status{ReviewSentiment: SentimentNegative, UserLookupStatus: LookupBroken}
	}
	return Status{ReviewSentiment: SentimentPositive, UserLookupStatus: LookupNormal}
}
