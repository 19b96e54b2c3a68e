/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankUnlimitedOncePerRound(t *testing.T) {
	t.Parallel()

	b := NewBank(map[LifelineKind]Count{LifelineHint: Unlimited}, nil)

	assert.True(t, b.Available(LifelineHint, true))
	assert.True(t, b.Consume(LifelineHint))
	for range 5 {
		assert.False(t, b.Consume(LifelineHint))
	}
	assert.False(t, b.Available(LifelineHint, true))
	assert.Equal(t, Unlimited, b.Remaining(LifelineHint))

	b.ResetRound()
	assert.True(t, b.Available(LifelineHint, true))
	assert.True(t, b.EverUsed(LifelineHint))
}

func TestBankFiniteNeverNegative(t *testing.T) {
	t.Parallel()

	b := NewBank(map[LifelineKind]Count{LifelineSkip: 1}, nil)

	assert.True(t, b.Consume(LifelineSkip))
	assert.Equal(t, Count(0), b.Remaining(LifelineSkip))

	for range 3 {
		b.ResetRound()
		assert.False(t, b.Available(LifelineSkip, true))
		assert.False(t, b.Consume(LifelineSkip))
	}
	assert.Equal(t, Count(0), b.Remaining(LifelineSkip))
	assert.Equal(t, Count(1), b.Total(LifelineSkip))
}

func TestBankFiniteAllowsReuseWithinRound(t *testing.T) {
	t.Parallel()

	b := NewBank(map[LifelineKind]Count{LifelineTime: 3}, nil)

	assert.True(t, b.Consume(LifelineTime))
	assert.True(t, b.Consume(LifelineTime))
	assert.Equal(t, Count(1), b.Remaining(LifelineTime))
}

func TestBankGuardAndDisabled(t *testing.T) {
	t.Parallel()

	b := NewBank(oneOfEach(2), []LifelineKind{LifelineYear})

	assert.False(t, b.Available(LifelineHint, false))
	assert.True(t, b.Available(LifelineHint, true))
	assert.False(t, b.Available(LifelineYear, true))
	assert.Equal(t, Count(0), b.Total(LifelineYear))
	assert.False(t, b.Available(LifelineKind("bogus"), true))
}

func TestBankUsedOrder(t *testing.T) {
	t.Parallel()

	b := NewBank(oneOfEach(Unlimited), nil)

	assert.Empty(t, b.Used())
	b.Consume(LifelineTime)
	b.Consume(LifelineHint)
	assert.Equal(t, []LifelineKind{LifelineHint, LifelineTime}, b.Used())
}

func TestParseLifelineKind(t *testing.T) {
	t.Parallel()

	kind, ok := ParseLifelineKind("expand")
	assert.True(t, ok)
	assert.Equal(t, LifelineExpand, kind)

	_, ok = ParseLifelineKind("teleport")
	assert.False(t, ok)
}

func TestHintCount(t *testing.T) {
	t.Parallel()

	tests := map[int]int{
		0:  0,
		1:  0,
		2:  1,
		3:  2,
		7:  2,
		10: 3,
		20: 6,
	}

	for unrevealed, want := range tests {
		assert.Equal(t, want, hintCount(unrevealed), "hintCount(%d)", unrevealed)
	}
}

func TestRevealLetters(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(5, 9))

	t.Run("ten letters reveal three", func(t *testing.T) {
		t.Parallel()

		revealed := map[int]bool{}
		n := revealLetters("abcde fghij", revealed, rand.New(rand.NewPCG(1, 1)))
		assert.Equal(t, 3, n)
		assert.Len(t, revealed, 3)
		assert.NotContains(t, revealed, 5, "spaces are never revealed")
	})

	t.Run("three letters reveal two", func(t *testing.T) {
		t.Parallel()

		revealed := map[int]bool{}
		n := revealLetters("a-b-c", revealed, rand.New(rand.NewPCG(2, 2)))
		assert.Equal(t, 2, n)
		assert.Equal(t, 1, strings.Count(maskText("a-b-c", revealed), "_"))
	})

	revealed := map[int]bool{}
	text := "Bohemian Rhapsody"
	for hintable(text, revealed) {
		before := len(revealed)
		require.Positive(t, revealLetters(text, revealed, rng))
		require.Greater(t, len(revealed), before)
	}
	assert.Equal(t, 1, strings.Count(maskText(text, revealed), "_"), "one letter always stays hidden")
}

func TestMaskText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "___'_ ___!", maskText("Abc'd Efg!", nil))
	assert.Equal(t, "A__'_ _f_!", maskText("Abc'd Efg!", map[int]bool{0: true, 7: true}))
	assert.Equal(t, "_____", maskText("Éclat", nil))
}
