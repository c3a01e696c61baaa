package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_InvalidArtifacts(t *testing.T) {
	testCases := []struct {
		name     string
		document string
		errorMsg string
	}{
		{
			name:     "unknown kind",
			document: "kind: svm\nfeatures: [raw_dust, raw_gas, temperature, humidity]\noutputs: [corrected_dust, corrected_gas]\n",
			errorMsg: "unknown model kind",
		},
		{
			name:     "wrong feature order",
			document: "kind: linear\nfeatures: [raw_gas, raw_dust, temperature, humidity]\noutputs: [corrected_dust, corrected_gas]\n",
			errorMsg: "unexpected features",
		},
		{
			name:     "missing outputs",
			document: "kind: linear\nfeatures: [raw_dust, raw_gas, temperature, humidity]\n",
			errorMsg: "unexpected outputs",
		},
		{
			name:     "forest without trees",
			document: "kind: forest\nfeatures: [raw_dust, raw_gas, temperature, humidity]\noutputs: [corrected_dust, corrected_gas]\n",
			errorMsg: "forest has no trees",
		},
		{
			name: "leaf with one value",
			document: `kind: forest
features: [raw_dust, raw_gas, temperature, humidity]
outputs: [corrected_dust, corrected_gas]
trees:
  - nodes:
      - {left: -1, right: -1, value: [1]}
`,
			errorMsg: "has 1 values",
		},
		{
			name: "child out of range",
			document: `kind: forest
features: [raw_dust, raw_gas, temperature, humidity]
outputs: [corrected_dust, corrected_gas]
trees:
  - nodes:
      - {feature: 0, threshold: 1, left: 1, right: 7}
      - {left: -1, right: -1, value: [1, 2]}
`,
			errorMsg: "child out of range",
		},
		{
			name: "split on unknown feature",
			document: `kind: forest
features: [raw_dust, raw_gas, temperature, humidity]
outputs: [corrected_dust, corrected_gas]
trees:
  - nodes:
      - {feature: 9, threshold: 1, left: 1, right: 1}
      - {left: -1, right: -1, value: [1, 2]}
`,
			errorMsg: "unknown feature",
		},
		{
			name:     "short coefficient row",
			document: "kind: linear\nfeatures: [raw_dust, raw_gas, temperature, humidity]\noutputs: [corrected_dust, corrected_gas]\nintercept: [0, 0]\ncoefficients: [[1, 0, 0], [0, 1, 0, 0]]\n",
			errorMsg: "coefficient row 0",
		},
		{
			name:     "not a document",
			document: "kind: [",
			errorMsg: "failed to decode",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.document))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorMsg)
		})
	}
}

func TestForest_CycleIsReported(t *testing.T) {
	forest, err := newForest([]Tree{{Nodes: []Node{
		{Feature: 0, Threshold: 10, Left: 1, Right: 1},
		{Feature: 0, Threshold: 10, Left: 0, Right: 0},
	}}})
	require.NoError(t, err)

	_, err = forest.Predict([featureCount]float64{5, 0, 0, 0})
	assert.ErrorContains(t, err, "cycle detected")
}

func TestLinear_NonFiniteIsReported(t *testing.T) {
	linear, err := newLinear([]float64{0, 0}, [][]float64{{1e308, 0, 0, 0}, {0, 1, 0, 0}})
	require.NoError(t, err)

	_, err = linear.Predict([featureCount]float64{1e308, 0, 0, 0})
	assert.ErrorContains(t, err, "corrected_dust prediction is not finite")
}
