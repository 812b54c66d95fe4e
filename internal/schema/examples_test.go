package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExampleSet(t *testing.T) {
	s := NewExampleSet(3)

	assert.True(t, s.Add("b"))
	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("b"))
	assert.True(t, s.Add("c"))
	assert.True(t, s.Full())
	assert.False(t, s.Add("d"))

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"b", "a", "c"}, s.Values())

	// Values is a copy.
	v := s.Values()
	v[0] = "mutated"
	assert.Equal(t, "b", s.Values()[0])
}

func TestExampleSet_ZeroCapacity(t *testing.T) {
	s := NewExampleSet(0)
	assert.False(t, s.Add("x"))
	assert.Empty(t, s.Values())
}
