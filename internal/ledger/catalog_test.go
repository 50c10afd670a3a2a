package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureCost(t *testing.T) {
	tests := []struct {
		feature string
		cost    int64
	}{
		{FeatureSummarizeNotes, 1},
		{FeatureSurgeonSearch, 1},
		{FeatureDraftEmail, 2},
		{FeatureAnalyzeSurgeon, 3},
	}

	for _, tt := range tests {
		cost, err := FeatureCost(tt.feature)
		assert.NoError(t, err)
		assert.Equal(t, tt.cost, cost, tt.feature)
	}
}

func TestFeatureCostUnknown(t *testing.T) {
	_, err := FeatureCost("doesNotExist")
	assert.Error(t, err)

	var unknownErr *UnknownFeatureError
	assert.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "doesNotExist", unknownErr.Feature)
}

func TestFeaturesListsCatalog(t *testing.T) {
	features := Features()
	assert.Len(t, features, 4)
	assert.Contains(t, features, FeatureAnalyzeSurgeon)
}
