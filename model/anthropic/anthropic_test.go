package anthropic

import (
	"testing"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/reagent-ai/reagent/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessagesSkipsSystemAndKeepsOrder(t *testing.T) {
	msgs := buildMessages([]core.Message{
		core.NewSystemMessage("be terse"),
		core.NewUserMessage("hello"),
		core.NewAssistantMessage("hi"),
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, anthropicsdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropicsdk.MessageParamRoleAssistant, msgs[1].Role)
}

func TestBuildMessagesToolObservationIsUserText(t *testing.T) {
	msgs := buildMessages([]core.Message{
		core.NewUserMessage("what's the weather"),
		core.NewAssistantMessage("Thought: check it\nAction: weather"),
		core.NewToolMessage("call-1", "weather", "17C and clear"),
	})
	require.Len(t, msgs, 3)

	obs := msgs[2]
	assert.Equal(t, anthropicsdk.MessageParamRoleUser, obs.Role)
	require.Len(t, obs.Content, 1)
	// Observations go in as text, never as tool_result blocks: the API
	// rejects results for tool_use ids it did not emit.
	assert.Nil(t, obs.Content[0].OfToolResult)
	require.NotNil(t, obs.Content[0].OfText)
	assert.Contains(t, obs.Content[0].OfText.Text, "weather")
	assert.Contains(t, obs.Content[0].OfText.Text, "17C and clear")
}

func TestBuildMessagesObservationWithoutCallID(t *testing.T) {
	msgs := buildMessages([]core.Message{
		core.NewUserMessage("hi"),
		core.NewToolMessage("", "reasoning", "Error: model unavailable"),
	})
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].Content[0].OfText)
	assert.Nil(t, msgs[1].Content[0].OfToolResult)
	assert.Equal(t, "Observation from reasoning: Error: model unavailable", msgs[1].Content[0].OfText.Text)
}
