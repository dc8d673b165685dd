package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystem(t *testing.T) {
	t.Parallel()
	got, err := System("", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, DefaultSystem))
	assert.Contains(t, got, "- (none yet)")

	got, err = System("Be kind.", []string{"suggest a walk"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "Be kind."))
	assert.Contains(t, got, "- suggest a walk")
	assert.NotContains(t, got, "(none yet)")
}

func TestBuildUser(t *testing.T) {
	t.Parallel()
	got, err := BuildUser(User{
		Input:    "kahve mi çay mı?",
		Working:  []string{"user: merhaba", "assistant: selam"},
		Memories: []string{"[2026-01-02 10:00] episodic (confidence 0.90) -> likes coffee (source: conversation)"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "User input: kahve mi çay mı?"))
	assert.Contains(t, got, "- user: merhaba\n- assistant: selam")
	assert.Contains(t, got, "-> likes coffee")
	assert.Contains(t, got, "- (no rules)")
	assert.NotContains(t, got, "External context")

	got, err = BuildUser(User{Input: "x", Enrichment: []string{"graph fact"}})
	require.NoError(t, err)
	assert.Contains(t, got, "- (no memories found)")
	assert.Contains(t, got, "External context:\n- graph fact")
}

func TestBuildSummary(t *testing.T) {
	t.Parallel()
	got, err := BuildSummary(Summary{Period: "weekly", MaxTokens: 128})
	require.NoError(t, err)
	assert.Contains(t, got, "Period: weekly")
	assert.Contains(t, got, "128 tokens")
	assert.Contains(t, got, "No records.")
}
