package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/city-synergy/internal/config"
)

// DefaultScoringConfig returns a config.ScoringConfig with the weights the
// pipeline ships with. Affinity leans on RFQ volume; synergy is
// (HYUNDAI+VPN)/2 + KOTRA.
func DefaultScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Affinity: config.AffinityConfig{
			Components: []config.WeightConfig{
				{Source: "RFQ", Weight: 0.8},
				{Source: "SOF", Weight: 0.2},
			},
		},
		Synergy: config.SynergyConfig{
			Components: []config.WeightConfig{
				{Source: "HYUNDAI", Weight: 0.5},
				{Source: "VPN", Weight: 0.5},
				{Source: "KOTRA", Weight: 1.0},
			},
			MaxRank:      100,
			FocusSource:  "KOTRA",
			ExclusiveTop: 5,
		},
		Total: config.TotalConfig{
			AffinityWeight: 0.5,
			SynergyWeight:  0.5,
			Scale:          100,
		},
		Blend: config.BlendConfig{
			Components: []config.WeightConfig{
				{Source: "RFQ", Weight: 0.4},
				{Source: "SOF", Weight: 0.25},
				{Source: "HYUNDAI", Weight: 0.15},
				{Source: "VPN", Weight: 0.1},
				{Source: "KOTRA", Weight: 0.1},
			},
		},
	}
}

// WeightSum returns the sum of all component weights.
func WeightSum(weights []config.WeightConfig) float64 {
	var sum float64
	for _, w := range weights {
		sum += w.Weight
	}
	return sum
}

// ValidateWeights checks one stage's component weights.
func ValidateWeights(stage string, weights []config.WeightConfig) error {
	errs := weightErrors(stage, weights)
	if len(errs) > 0 {
		return eris.Errorf("scorer: weights invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

func weightErrors(stage string, weights []config.WeightConfig) []string {
	if len(weights) == 0 {
		return []string{stage + ": at least one component is required"}
	}

	var errs []string
	seen := make(map[string]bool, len(weights))
	for i, w := range weights {
		name := strings.ToUpper(strings.TrimSpace(w.Source))
		if name == "" {
			errs = append(errs, fmt.Sprintf("%s: components[%d].source is required", stage, i))
		} else if seen[name] {
			errs = append(errs, fmt.Sprintf("%s: source %q listed twice", stage, w.Source))
		}
		seen[name] = true
		if w.Weight < 0 {
			errs = append(errs, fmt.Sprintf("%s: %s weight must be >= 0", stage, w.Source))
		}
	}
	if WeightSum(weights) <= 0 {
		errs = append(errs, stage+": weight sum must be > 0")
	}
	return errs
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string
	errs = append(errs, weightErrors("affinity", c.Affinity.Components)...)
	errs = append(errs, weightErrors("synergy", c.Synergy.Components)...)
	if len(c.Blend.Components) > 0 {
		errs = append(errs, weightErrors("blend", c.Blend.Components)...)
	}

	if c.Synergy.MaxRank < 1 {
		errs = append(errs, "synergy: max_rank must be > 0")
	}
	if c.Synergy.ExclusiveTop < 0 {
		errs = append(errs, "synergy: exclusive_top must be >= 0")
	}
	if c.Synergy.FocusSource != "" && !hasSource(c.Synergy.Components, c.Synergy.FocusSource) {
		errs = append(errs, fmt.Sprintf("synergy: focus_source %q is not a component", c.Synergy.FocusSource))
	}

	if c.Total.AffinityWeight < 0 || c.Total.SynergyWeight < 0 {
		errs = append(errs, "total: weights must be >= 0")
	}
	if c.Total.Scale <= 0 {
		errs = append(errs, "total: scale must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func hasSource(weights []config.WeightConfig, source string) bool {
	for _, w := range weights {
		if strings.EqualFold(w.Source, source) {
			return true
		}
	}
	return false
}
