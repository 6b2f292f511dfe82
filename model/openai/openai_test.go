package openai

import (
	"testing"

	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessagesRolesAndSystem(t *testing.T) {
	msgs := buildMessages(model.Request{
		System: "be terse",
		Messages: []core.Message{
			core.NewUserMessage("hello"),
			core.NewAssistantMessage("hi"),
		},
	})
	require.Len(t, msgs, 3)
	require.NotNil(t, msgs[0].OfSystem)
	require.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Equal(t, "hello", msgs[1].OfUser.Content.OfString.Value)
}

func TestBuildMessagesToolObservationIsUserText(t *testing.T) {
	msgs := buildMessages(model.Request{
		Messages: []core.Message{
			core.NewUserMessage("what's the weather"),
			core.NewAssistantMessage("Thought: check it\nAction: weather"),
			core.NewToolMessage("call-1", "weather", "17C and clear"),
		},
	})
	require.Len(t, msgs, 3)

	obs := msgs[2]
	// Locally minted call ids must never surface as tool-role messages;
	// the API rejects results for calls it did not issue.
	assert.Nil(t, obs.OfTool)
	require.NotNil(t, obs.OfUser)
	text := obs.OfUser.Content.OfString.Value
	assert.Contains(t, text, "weather")
	assert.Contains(t, text, "17C and clear")
}

func TestBuildMessagesObservationWithoutCallID(t *testing.T) {
	// The reasoning retry path records observations with an empty call id.
	msgs := buildMessages(model.Request{
		Messages: []core.Message{
			core.NewUserMessage("hi"),
			core.NewToolMessage("", "reasoning", "Error: model unavailable"),
		},
	})
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].OfUser)
	assert.Nil(t, msgs[1].OfTool)
	assert.Equal(t, "Observation from reasoning: Error: model unavailable", msgs[1].OfUser.Content.OfString.Value)
}
