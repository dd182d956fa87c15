package ontology

// GovernanceConfig holds the auto-publish/auto-propose thresholds that
// gate submitted definitions.
type GovernanceConfig struct {
	PublishMinConfidence float64
	PublishMaxComplexity int
	PublishMaxDepth      int
	ProposeMinConfidence float64
	ProposeMaxComplexity int
	ProposeMaxDepth      int
}

// DefaultGovernanceConfig returns the default thresholds:
// auto-Published at confidence >= 0.85, complexity <= 5, depth <= 4;
// auto-Proposed at confidence >= 0.5, complexity <= 9, depth <= 9;
// else Rejected.
func DefaultGovernanceConfig() GovernanceConfig {
	return GovernanceConfig{
		PublishMinConfidence: 0.85,
		PublishMaxComplexity: 5,
		PublishMaxDepth:      4,
		ProposeMinConfidence: 0.5,
		ProposeMaxComplexity: 9,
		ProposeMaxDepth:      9,
	}
}

// Gate classifies a candidate definition's governance fields into the
// status it should be stored with.
func (g GovernanceConfig) Gate(confidence float64, complexity, depth int) Status {
	if confidence >= g.PublishMinConfidence && complexity <= g.PublishMaxComplexity && depth <= g.PublishMaxDepth {
		return StatusPublished
	}
	if confidence >= g.ProposeMinConfidence && complexity <= g.ProposeMaxComplexity && depth <= g.ProposeMaxDepth {
		return StatusProposed
	}
	return StatusRejected
}
