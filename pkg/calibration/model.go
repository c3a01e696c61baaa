package calibration

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Model kinds understood by Decode
const (
	KindForest = "forest"
	KindLinear = "linear"
)

// Feature and output order of every artifact
var (
	FeatureNames = []string{"raw_dust", "raw_gas", "temperature", "humidity"}
	OutputNames  = []string{"corrected_dust", "corrected_gas"}
)

const (
	featureCount = 4
	outputCount  = 2
)

// Regressor predicts corrected dust and gas from raw features ordered as FeatureNames
type Regressor interface {
	Predict(features [featureCount]float64) ([outputCount]float64, error)
}

// Artifact is the on-disk description of a trained regressor. The file may be
// JSON or YAML.
type Artifact struct {
	Kind         string      `yaml:"kind"`
	Version      string      `yaml:"version,omitempty"`
	Features     []string    `yaml:"features"`
	Outputs      []string    `yaml:"outputs"`
	Trees        []Tree      `yaml:"trees,omitempty"`
	Intercept    []float64   `yaml:"intercept,omitempty"`
	Coefficients [][]float64 `yaml:"coefficients,omitempty"`
}

// Tree is a regression tree stored as a flat node array; node 0 is the root
type Tree struct {
	Nodes []Node `yaml:"nodes"`
}

// Node is a split when Left >= 0, otherwise a leaf carrying Value
type Node struct {
	Feature   int       `yaml:"feature"`
	Threshold float64   `yaml:"threshold"`
	Left      int       `yaml:"left"`
	Right     int       `yaml:"right"`
	Value     []float64 `yaml:"value,omitempty"`
}

// LoadFile reads and decodes an artifact from path
func LoadFile(path string) (Regressor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses an artifact document and builds its regressor
func Decode(data []byte) (Regressor, error) {
	var artifact Artifact
	if err := yaml.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode calibration artifact: %w", err)
	}
	return artifact.Build()
}

// Build validates the artifact and returns the matching regressor
func (a *Artifact) Build() (Regressor, error) {
	if !sameNames(a.Features, FeatureNames) {
		return nil, fmt.Errorf("unexpected features %v (want %v)", a.Features, FeatureNames)
	}
	if !sameNames(a.Outputs, OutputNames) {
		return nil, fmt.Errorf("unexpected outputs %v (want %v)", a.Outputs, OutputNames)
	}

	switch a.Kind {
	case KindForest:
		return newForest(a.Trees)
	case KindLinear:
		return newLinear(a.Intercept, a.Coefficients)
	default:
		return nil, fmt.Errorf("unknown model kind %q", a.Kind)
	}
}

func sameNames(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// Forest averages the predictions of its trees, like a random forest regressor
type Forest struct {
	trees []Tree
}

func newForest(trees []Tree) (*Forest, error) {
	if len(trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	for ti, tree := range trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, node := range tree.Nodes {
			if node.Left < 0 {
				if len(node.Value) != outputCount {
					return nil, fmt.Errorf("tree %d leaf %d has %d values, want %d", ti, ni, len(node.Value), outputCount)
				}
				continue
			}
			if node.Feature < 0 || node.Feature >= featureCount {
				return nil, fmt.Errorf("tree %d node %d splits on unknown feature %d", ti, ni, node.Feature)
			}
			if node.Left >= len(tree.Nodes) || node.Right < 0 || node.Right >= len(tree.Nodes) {
				return nil, fmt.Errorf("tree %d node %d has child out of range", ti, ni)
			}
		}
	}
	return &Forest{trees: trees}, nil
}

// Predict walks every tree and averages the leaf values
func (f *Forest) Predict(features [featureCount]float64) ([outputCount]float64, error) {
	var sum [outputCount]float64
	for ti, tree := range f.trees {
		leaf, err := walk(tree, features)
		if err != nil {
			return sum, fmt.Errorf("tree %d: %w", ti, err)
		}
		for i := range sum {
			sum[i] += leaf[i]
		}
	}

	n := float64(len(f.trees))
	for i := range sum {
		sum[i] /= n
	}
	return sum, checkFinite(sum)
}

func walk(tree Tree, features [featureCount]float64) ([]float64, error) {
	idx := 0
	// a well formed tree reaches a leaf in fewer steps than it has nodes
	for steps := 0; steps <= len(tree.Nodes); steps++ {
		node := tree.Nodes[idx]
		if node.Left < 0 {
			return node.Value, nil
		}
		if features[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
	return nil, errors.New("cycle detected")
}

// Linear is a multi-output linear regression
type Linear struct {
	intercept    [outputCount]float64
	coefficients [outputCount][featureCount]float64
}

func newLinear(intercept []float64, coefficients [][]float64) (*Linear, error) {
	if len(intercept) != outputCount {
		return nil, fmt.Errorf("linear model has %d intercepts, want %d", len(intercept), outputCount)
	}
	if len(coefficients) != outputCount {
		return nil, fmt.Errorf("linear model has %d coefficient rows, want %d", len(coefficients), outputCount)
	}

	l := &Linear{}
	for o := 0; o < outputCount; o++ {
		if len(coefficients[o]) != featureCount {
			return nil, fmt.Errorf("coefficient row %d has %d entries, want %d", o, len(coefficients[o]), featureCount)
		}
		l.intercept[o] = intercept[o]
		copy(l.coefficients[o][:], coefficients[o])
	}
	return l, nil
}

// Predict computes intercept + coefficients · features per output
func (l *Linear) Predict(features [featureCount]float64) ([outputCount]float64, error) {
	var out [outputCount]float64
	for o := 0; o < outputCount; o++ {
		out[o] = l.intercept[o]
		for f := 0; f < featureCount; f++ {
			out[o] += l.coefficients[o][f] * features[f]
		}
	}
	return out, checkFinite(out)
}

func checkFinite(values [outputCount]float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s prediction is not finite", OutputNames[i])
		}
	}
	return nil
}
