package agent

import (
	"context"
	"testing"

	"GraphMind/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResponder struct {
	id string
}

func (s *staticResponder) ID() string { return s.id }

func (s *staticResponder) Respond(ctx context.Context, input string) (*Result, error) {
	return &Result{Text: "static"}, nil
}

func TestReplaceDescriptorsIsWholesale(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceDescriptors(models.DefaultAgents())
	require.Len(t, reg.Descriptors(), 2)

	reg.ReplaceDescriptors([]models.AgentDescriptor{
		{ID: "only_agent", Name: "Only", Enabled: true},
	})

	descriptors := reg.Descriptors()
	require.Len(t, descriptors, 1)
	assert.Equal(t, "only_agent", descriptors[0].ID)

	_, ok := reg.Descriptor("llm_agent")
	assert.False(t, ok)
}

func TestReplaceDescriptorMap(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceDescriptorMap(map[string]models.AgentDescriptor{
		"a": {ID: "a", Enabled: true},
		"b": {ID: "b", Enabled: false},
	})

	assert.Len(t, reg.Descriptors(), 2)
	assert.Len(t, reg.EnabledDescriptors(), 1)
}

func TestEnabledDescriptorsFilterAndOrder(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceDescriptors([]models.AgentDescriptor{
		{ID: "low", Enabled: true, Priority: 1},
		{ID: "high", Enabled: true, Priority: 9},
		{ID: "disabled", Enabled: false, Priority: 10},
		{ID: "mid_b", Enabled: true, Priority: 5},
		{ID: "mid_a", Enabled: true, Priority: 5},
	})

	enabled := reg.EnabledDescriptors()
	require.Len(t, enabled, 4)
	assert.Equal(t, "high", enabled[0].ID)
	// 同优先级按ID排序，保证结果确定。
	assert.Equal(t, "mid_a", enabled[1].ID)
	assert.Equal(t, "mid_b", enabled[2].ID)
	assert.Equal(t, "low", enabled[3].ID)
}

func TestResponderLookupSurvivesDescriptorReplacement(t *testing.T) {
	reg := NewRegistry()
	reg.ReplaceDescriptors(models.DefaultAgents())
	reg.RegisterResponder(&staticResponder{id: "llm_agent"})

	reg.ReplaceDescriptors([]models.AgentDescriptor{{ID: "other", Enabled: true}})

	// 实现与描述符分离：描述符替换不会摘掉已装配的响应者。
	responder, ok := reg.Responder("llm_agent")
	require.True(t, ok)
	assert.Equal(t, "llm_agent", responder.ID())

	_, ok = reg.Responder("other")
	assert.False(t, ok)
}
