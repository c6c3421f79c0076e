package conversation_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/internal/testutil"
	"github.com/shreyachakravarty07/AgentTrace/pkg/conversation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation(t *testing.T) {
	ctx := context.Background()

	newConversation := func() (*conversation.Conversation, *testutil.FakeGenerator) {
		gen := testutil.NewFakeGenerator()
		return conversation.New(gen, testutil.NopLogger{}, "distilgpt2", 50), gen
	}

	t.Run("AddTurnAppends", func(t *testing.T) {
		conv, gen := newConversation()
		resp, err := conv.AddTurn(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, "distilgpt2: hello", resp)

		_, err = conv.AddTurn(ctx, "again")
		require.NoError(t, err)
		assert.Equal(t, []models.Turn{
			{Prompt: "hello", Response: "distilgpt2: hello"},
			{Prompt: "again", Response: "distilgpt2: again"},
		}, conv.History())
		assert.Equal(t, 50, gen.Calls()[0].MaxLength)
	})

	t.Run("FailedTurnNotRecorded", func(t *testing.T) {
		conv, gen := newConversation()
		gen.FailModel("distilgpt2", errors.New("model not found"))
		_, err := conv.AddTurn(ctx, "hello")
		assert.Error(t, err)
		assert.Empty(t, conv.History())
	})

	t.Run("ReplayDoesNotMutateHistory", func(t *testing.T) {
		conv, gen := newConversation()
		_, err := conv.AddTurn(ctx, "tell me a story")
		require.NoError(t, err)
		before := conv.History()

		resp, err := conv.ReplayTurn(ctx, 0, "about dragons")
		require.NoError(t, err)
		assert.Equal(t, "distilgpt2: tell me a story about dragons", resp)
		assert.Equal(t, before, conv.History())
		assert.Equal(t, "tell me a story about dragons", gen.Calls()[1].Prompt)
	})

	t.Run("ReplayWithoutModificationReusesPrompt", func(t *testing.T) {
		conv, gen := newConversation()
		_, err := conv.AddTurn(ctx, "  padded  ")
		require.NoError(t, err)
		_, err = conv.ReplayTurn(ctx, 0, "")
		require.NoError(t, err)
		assert.Equal(t, "  padded  ", gen.Calls()[1].Prompt)
	})

	t.Run("ReplayOutOfRange", func(t *testing.T) {
		conv, _ := newConversation()
		_, err := conv.ReplayTurn(ctx, 0, "x")
		assert.ErrorIs(t, err, conversation.ErrTurnOutOfRange)
		_, err = conv.ReplayTurn(ctx, -1, "x")
		assert.ErrorIs(t, err, conversation.ErrTurnOutOfRange)
	})

	t.Run("TraceNotRecorded", func(t *testing.T) {
		conv, _ := newConversation()
		text, trace, err := conv.Trace(ctx, "why")
		require.NoError(t, err)
		assert.Equal(t, "distilgpt2: why", text)
		require.Len(t, trace, 2)
		assert.Equal(t, models.TokenTrace{Token: "distilgpt2:", Confidence: 1}, trace[0])
		assert.Empty(t, conv.History())
	})

	t.Run("Reset", func(t *testing.T) {
		conv, _ := newConversation()
		_, err := conv.AddTurn(ctx, "hello")
		require.NoError(t, err)
		conv.Reset()
		assert.Empty(t, conv.History())
	})
}
