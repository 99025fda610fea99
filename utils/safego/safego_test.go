package safego

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCall(t *testing.T) {
	assert.NoError(t, Call("ok", func() error { return nil }))
	assert.EqualError(t, Call("failing", func() error { return errors.New("boom") }), "boom")

	err := Call("stream[a]", func() error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	assert.ErrorContains(t, err, "stream[a] panicked")
}
