package embellish

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecorate_GreetingOnlyWhenNotGreeted(t *testing.T) {
	e := New(NewSource(42))

	out, greeted := e.Decorate("hello", false)
	assert.Equal(t, "hello "+Greeting, out)
	assert.True(t, greeted)

	for i := 0; i < 200; i++ {
		out, greeted = e.Decorate("again", true)
		require.True(t, greeted)
		assert.NotContains(t, out, Greeting)
	}
}

func TestDecorate_SameSeedSameSequence(t *testing.T) {
	a := New(NewSource(7))
	b := New(NewSource(7))

	for i := 0; i < 50; i++ {
		outA, _ := a.Decorate("hi", true)
		outB, _ := b.Decorate("hi", true)
		require.Equal(t, outA, outB)
	}
}

func TestDecorate_SuffixRateAndPool(t *testing.T) {
	e := New(NewSource(1234))
	const n = 4000
	decorated := 0
	for i := 0; i < n; i++ {
		out, _ := e.Decorate("hi", true)
		if out == "hi" {
			continue
		}
		decorated++
		suffix := strings.TrimPrefix(out, "hi ")
		assert.Contains(t, DefaultSuffixes, suffix)
	}

	rate := float64(decorated) / n
	assert.InDelta(t, DefaultProbability, rate, 0.05)
}

func TestNew_NilSource(t *testing.T) {
	e := New(nil)
	out, greeted := e.Decorate("x", false)
	assert.Equal(t, "x "+Greeting, out)
	assert.True(t, greeted)
}
