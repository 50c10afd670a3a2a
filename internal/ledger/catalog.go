package ledger

// Feature identifiers for the metered operations.
const (
	FeatureSummarizeNotes = "summarizeNotes"
	FeatureDraftEmail     = "draftEmail"
	FeatureAnalyzeSurgeon = "analyzeSurgeon"
	FeatureSurgeonSearch  = "surgeonSearch"
)

// featureCosts is the static catalog mapping each feature to its credit
// cost. Configuration, not state: it never changes at runtime.
var featureCosts = map[string]int64{
	FeatureSummarizeNotes: 1,
	FeatureSurgeonSearch:  1,
	FeatureDraftEmail:     2,
	FeatureAnalyzeSurgeon: 3,
}

// FeatureCost resolves the credit cost of a feature. An unknown feature is a
// caller bug, reported as UnknownFeatureError before any state is touched.
func FeatureCost(feature string) (int64, error) {
	cost, ok := featureCosts[feature]
	if !ok {
		return 0, &UnknownFeatureError{Feature: feature}
	}
	return cost, nil
}

// Features returns the known feature identifiers.
func Features() []string {
	names := make([]string, 0, len(featureCosts))
	for name := range featureCosts {
		names = append(names, name)
	}
	return names
}
