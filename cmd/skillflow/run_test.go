package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/event"
	"github.com/BaSui01/skillflow/types"
)

type greetSkill struct{}

func (greetSkill) Name() string                     { return "greet" }
func (greetSkill) Description() string              { return "says hello" }
func (greetSkill) ConfigSchema() types.ConfigSchema { return types.ConfigSchema{} }

func (greetSkill) Invoke(ctx context.Context, in *skill.Input, cfg *skill.RunConfig) (*skill.Output, error) {
	event.EmitStream(ctx, cfg.Emitter, "greet", "hello "+in.Query)
	return &skill.Output{Answer: "hello " + in.Query, Steps: 1}, nil
}

func TestInvokeOnce_WritesJSONLines(t *testing.T) {
	registry := skill.NewRegistry(nil, 0, nil)
	require.NoError(t, registry.Register(greetSkill{}))

	var buf bytes.Buffer
	out, err := invokeOnce(context.Background(), registry, &buf, "greet", &skill.Input{Query: "gopher"}, &skill.RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, "hello gopher", out.Answer)

	var kinds []event.Kind
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var ev event.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []event.Kind{event.KindStream, event.KindEnd}, kinds)
}

func TestInvokeOnce_UnknownSkill(t *testing.T) {
	registry := skill.NewRegistry(nil, 0, nil)
	_, err := invokeOnce(context.Background(), registry, &bytes.Buffer{}, "missing", &skill.Input{}, &skill.RunConfig{})
	assert.True(t, types.IsErrorCode(err, types.ErrSkillNotFound))
}

func TestConfigFlags(t *testing.T) {
	var c configFlags
	require.NoError(t, c.Set("imageRatio=16:9"))
	require.NoError(t, c.Set("enableKnowledgeBaseSearch=false"))
	require.NoError(t, c.Set("prompt=a=b"))
	assert.Error(t, c.Set("novalue"))

	assert.Equal(t, map[string]any{
		"imageRatio":                "16:9",
		"enableKnowledgeBaseSearch": false,
		"prompt":                    "a=b",
	}, c.values())
	assert.Nil(t, configFlags(nil).values())
}
