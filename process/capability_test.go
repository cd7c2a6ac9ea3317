package process

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArguments(t *testing.T) {
	assert.Empty(t, SplitArguments(""))
	assert.Equal(t, []string{"--batch"}, SplitArguments("--batch"))
	assert.Equal(t, []string{"--batch", "--quiet"}, SplitArguments("  --batch   --quiet "))
}

func TestMatchesProcessName(t *testing.T) {
	assert.True(t, matchesProcessName("renderd", "renderd"))
	assert.False(t, matchesProcessName("renderd2", "renderd"))
	assert.False(t, matchesProcessName("renderd", "render"))
}

func TestStartRejectsMissingExecutable(t *testing.T) {
	cap := NewOSCapability(nil)
	_, err := cap.Start(context.Background(), StartSpec{ExecutablePath: "/nonexistent/definitely-not-here"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecutableNotFound)
}

func TestFindProcessMissesUnknownName(t *testing.T) {
	cap := NewOSCapability(nil)
	_, found, err := cap.FindProcess(context.Background(), "powerminder-test-no-such-process")
	require.NoError(t, err)
	assert.False(t, found)
}
