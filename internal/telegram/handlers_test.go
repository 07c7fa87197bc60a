package telegram

import (
	"testing"

	"go_bridge/internal/bridge/forward"
	"go_bridge/internal/bridge/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstanceArg(t *testing.T) {
	id, err := parseInstanceArg(nil)
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = parseInstanceArg([]string{"3"})
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, int64(3), *id)

	_, err = parseInstanceArg([]string{"x"})
	assert.Error(t, err)
}

func TestDescribePair(t *testing.T) {
	thread := int64(7)
	pair := &models.ForwardPair{SideARoomID: 100, SideBChatID: -200, SideBThreadID: &thread, ForwardMode: "10"}
	assert.Equal(t, "群 <code>100</code> ⇄ 会话 <code>-200</code> 话题 <code>7</code> 方向 10", describePair(pair))
}

func TestSameThread(t *testing.T) {
	a, b := int64(1), int64(1)
	c := int64(2)
	assert.True(t, sameThread(nil, nil))
	assert.True(t, sameThread(&a, &b))
	assert.False(t, sameThread(&a, &c))
	assert.False(t, sameThread(&a, nil))
}

func TestPipelineFor_NoInstances(t *testing.T) {
	b := &Bot{}
	_, err := b.pipelineFor(-100, nil, nil)
	assert.Error(t, err)

	b.AttachEngine(forward.NewEngine(nil))
	_, err = b.pipelineFor(-100, nil, nil)
	assert.Error(t, err)

	missing := int64(9)
	_, err = b.pipelineFor(-100, nil, &missing)
	assert.Error(t, err)
}

func TestIsOwner(t *testing.T) {
	b := &Bot{ownerIDs: []int64{1, 2}}
	assert.True(t, b.isOwner(2))
	assert.False(t, b.isOwner(3))
}
