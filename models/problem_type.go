package models

// ProblemType classifies a criminal-law problem. A question may carry
// several types at once (multi-label).
type ProblemType string

const (
	TypeStatutoryRegulation   ProblemType = "statutory_regulation"
	TypeCaseLawApplication    ProblemType = "case_law_application"
	TypeTerminologyDefinition ProblemType = "terminology_definition"
	TypeProceduralLaw         ProblemType = "procedural_law"
	TypeCorrectionalProbation ProblemType = "correctional_probation"
	TypeSubstantiveTheory     ProblemType = "substantive_theory"
)

// AllProblemTypes lists the closed enumeration of problem types.
var AllProblemTypes = []ProblemType{
	TypeStatutoryRegulation,
	TypeCaseLawApplication,
	TypeTerminologyDefinition,
	TypeProceduralLaw,
	TypeCorrectionalProbation,
	TypeSubstantiveTheory,
}

// ParseProblemType maps a classifier string to a known ProblemType.
func ParseProblemType(s string) (ProblemType, bool) {
	for _, t := range AllProblemTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// ProblemTypeSet is a deduplicated set of problem types.
type ProblemTypeSet map[ProblemType]bool

// NewProblemTypeSet builds a set from classifier output, dropping strings
// outside the closed enumeration.
func NewProblemTypeSet(labels []string) ProblemTypeSet {
	set := make(ProblemTypeSet)
	for _, s := range labels {
		if t, ok := ParseProblemType(s); ok {
			set[t] = true
		}
	}
	return set
}

// Slice returns the set members in enumeration order.
func (s ProblemTypeSet) Slice() []ProblemType {
	out := make([]ProblemType, 0, len(s))
	for _, t := range AllProblemTypes {
		if s[t] {
			out = append(out, t)
		}
	}
	return out
}
