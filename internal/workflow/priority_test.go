package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		policy  PriorityPolicy
		amount  float64
		purpose string
		want    Priority
	}{
		{name: "high by amount", amount: 150000, purpose: "School building", want: PriorityHigh},
		{name: "medium by amount", amount: 60000, purpose: "Street lights", want: PriorityMedium},
		{name: "low", amount: 10000, purpose: "Notice board", want: PriorityLow},
		{name: "keyword beats amount", amount: 10000, purpose: "Emergency Relief", want: PriorityHigh},
		{name: "threshold inclusive", amount: 50000, want: PriorityMedium},
		{name: "custom thresholds", policy: PriorityPolicy{HighAmount: 20000, MediumAmount: 5000}, amount: 25000, want: PriorityHigh},
		{name: "custom keywords replace defaults", policy: PriorityPolicy{Keywords: []string{" Cyclone "}}, amount: 100, purpose: "flood and cyclone damage", want: PriorityHigh},
		{name: "custom keywords drop defaults", policy: PriorityPolicy{Keywords: []string{"cyclone"}}, amount: 100, purpose: "flood", want: PriorityLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.policy.Classify(tc.amount, tc.purpose))
		})
	}
}

func TestPriorityPolicyNormalized(t *testing.T) {
	n := PriorityPolicy{Keywords: []string{" Cyclone ", "", "FLOOD"}}.Normalized()
	assert.Equal(t, []string{"cyclone", "flood"}, n.Keywords)
	assert.Equal(t, float64(DefaultHighAmount), n.HighAmount)
	assert.Equal(t, float64(DefaultMediumAmount), n.MediumAmount)

	assert.Equal(t, DefaultPriorityKeywords, PriorityPolicy{}.Normalized().Keywords)
}
