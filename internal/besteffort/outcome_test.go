package besteffort

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome_OK(t *testing.T) {
	o := OK("0xabc")
	assert.True(t, o.Ok())
	assert.Equal(t, "0xabc", o.Or("unavailable"))
	if assert.NotNil(t, o.Ptr()) {
		assert.Equal(t, "0xabc", *o.Ptr())
	}
	assert.NoError(t, o.Err)
}

func TestOutcome_NotOK(t *testing.T) {
	boom := errors.New("boom")

	cases := map[Status]Outcome[string]{
		StatusSkipped:     Skipped[string]("no credential"),
		StatusUnavailable: Unavailable[string](boom),
		StatusFailed:      Failed[string](boom),
	}

	for status, o := range cases {
		assert.Equal(t, status, o.Status)
		assert.False(t, o.Ok())
		assert.Equal(t, "unavailable", o.Or("unavailable"))
		assert.Nil(t, o.Ptr())
		assert.Error(t, o.Err)
	}
}
