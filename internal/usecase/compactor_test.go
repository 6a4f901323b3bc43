package usecase

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council-ai/internal/domain"
)

func msgOfTokens(n int) domain.Message {
	// CharEstimator: ceil(chars/4) + overhead.
	chars := (n - messageOverhead) * charsPerToken
	if chars < 0 {
		chars = 0
	}
	return domain.Message{Role: domain.RoleUser, Content: strings.Repeat("a", chars)}
}

func history(sizes ...int) []domain.Message {
	msgs := make([]domain.Message, len(sizes))
	for i, n := range sizes {
		msgs[i] = msgOfTokens(n)
	}
	return msgs
}

func TestCharEstimator(t *testing.T) {
	e := CharEstimator{}
	assert.Equal(t, 0, e.CountText(""))
	assert.Equal(t, 1, e.CountText("abc"))
	assert.Equal(t, 2, e.CountText("abcde"))
	assert.Equal(t, 1, e.CountText("日本語"))

	m := domain.Message{Content: "abcd", Images: []string{"x", "y"}}
	assert.Equal(t, 1+2*ImageTokenPenalty+messageOverhead, e.CountMessage(m))
}

func TestCompactor_UnderThresholdKeepsEverything(t *testing.T) {
	c := NewCompactor(CompactorConfig{}, nil, testLogger())
	h := history(100, 100, 100, 100, 100, 100, 100)

	kept, res := c.Compact(h, 1000, 0)
	assert.Equal(t, 0, res.Removed)
	assert.Len(t, kept, 7)
	assert.Equal(t, 700, res.TokensBefore)
}

func TestCompactor_TrimsOldestToTarget(t *testing.T) {
	c := NewCompactor(CompactorConfig{}, nil, testLogger())
	// 10 x 100 = 1000 > 0.8*1000; trim down to <= 500.
	h := history(100, 100, 100, 100, 100, 100, 100, 100, 100, 100)
	h[5].AgentID = "keep-me"

	kept, res := c.Compact(h, 1000, 0)
	assert.Equal(t, 5, res.Removed)
	assert.Equal(t, 500, res.TokensAfter)
	require.Len(t, kept, 5)
	assert.Equal(t, "keep-me", kept[0].AgentID)
}

func TestCompactor_FloorOfFive(t *testing.T) {
	c := NewCompactor(CompactorConfig{}, nil, testLogger())
	h := history(1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000)

	kept, res := c.Compact(h, 100, 0)
	assert.Equal(t, 3, res.Removed)
	assert.Len(t, kept, 5)
}

func TestCompactor_ShortHistoryUntouched(t *testing.T) {
	c := NewCompactor(CompactorConfig{}, nil, testLogger())
	h := history(5000, 5000, 5000)

	kept, res := c.Compact(h, 100, 0)
	assert.Equal(t, 0, res.Removed)
	assert.Len(t, kept, 3)
}

func TestCompactor_ImagePenaltyTriggers(t *testing.T) {
	c := NewCompactor(CompactorConfig{}, nil, testLogger())
	h := history(10, 10, 10, 10, 10, 10, 10)
	h[0].Images = []string{"aGVsbG8=", "aGVsbG8=", "aGVsbG8="}

	_, res := c.Compact(h, 3000, 0)
	assert.Equal(t, 1, res.Removed)
}

func TestCompactor_ReserveTriggers(t *testing.T) {
	c := NewCompactor(CompactorConfig{}, nil, testLogger())
	h := history(100, 100, 100, 100, 100, 100, 100)

	res := c.Plan(h, 1000, 0)
	assert.Equal(t, 0, res.Removed)

	res = c.Plan(h, 1000, 400)
	assert.Equal(t, 2, res.Removed)
	assert.LessOrEqual(t, res.TokensAfter, 500)
}

func TestCompactor_Properties(t *testing.T) {
	c := NewCompactor(CompactorConfig{}, nil, testLogger())
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(40)
		sizes := make([]int, n)
		for j := range sizes {
			sizes[j] = messageOverhead + rng.Intn(2000)
		}
		h := history(sizes...)
		limit := 50 + rng.Intn(20000)

		kept, res := c.Compact(h, limit, 0)
		assert.Equal(t, len(h)-res.Removed, len(kept))
		assert.Equal(t, EstimateMessages(CharEstimator{}, kept), res.TokensAfter)

		if len(h) > defaultMinKeep {
			assert.GreaterOrEqual(t, len(kept), defaultMinKeep)
		}
		if float64(res.TokensBefore) > 0.8*float64(limit) && len(h) > defaultMinKeep {
			assert.True(t,
				float64(res.TokensAfter) <= 0.5*float64(limit) || len(kept) == defaultMinKeep,
				"after=%d limit=%d kept=%d", res.TokensAfter, limit, len(kept))
		}
		if res.Removed > 0 {
			assert.Equal(t, h[res.Removed:], kept)
		}
	}
}
