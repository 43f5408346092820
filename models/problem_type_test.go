package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseProblemType(t *testing.T) {
	pt, ok := ParseProblemType("case_law_application")
	assert.True(t, ok)
	assert.Equal(t, TypeCaseLawApplication, pt)

	_, ok = ParseProblemType("civil_law")
	assert.False(t, ok)
}

func TestNewProblemTypeSetDropsUnknown(t *testing.T) {
	set := NewProblemTypeSet([]string{
		"statutory_regulation",
		"not_a_type",
		"substantive_theory",
		"statutory_regulation",
	})
	assert.Len(t, set, 2)
	assert.True(t, set[TypeStatutoryRegulation])
	assert.True(t, set[TypeSubstantiveTheory])
}

func TestProblemTypeSetSliceOrder(t *testing.T) {
	set := NewProblemTypeSet([]string{"substantive_theory", "statutory_regulation"})
	assert.Equal(t, []ProblemType{TypeStatutoryRegulation, TypeSubstantiveTheory}, set.Slice())
}
