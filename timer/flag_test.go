package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagValues(t *testing.T) {
	assert.Equal(t, Flag(1), Unique)
	assert.Equal(t, Flag(2), Override)
	assert.Equal(t, Flag(4), RealTime)
	assert.Equal(t, Flag(8), Stoppable)
	assert.Equal(t, Flag(16), NoHashWait)
	assert.Equal(t, Flag(32), Loop)
}

func TestFlagHasAndValid(t *testing.T) {
	f := Unique | Loop
	assert.True(t, f.Has(Unique))
	assert.True(t, f.Has(Loop))
	assert.False(t, f.Has(Stoppable))
	assert.True(t, f.Valid())
	assert.True(t, Flag(63).Valid())
	assert.False(t, Flag(64).Valid())
}

func TestFlagString(t *testing.T) {
	assert.Equal(t, "none", Flag(0).String())
	assert.Equal(t, "unique|loop", (Unique | Loop).String())
	assert.Equal(t, "stoppable|invalid", (Stoppable | 128).String())
}
