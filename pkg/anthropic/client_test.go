package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestResponseText(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "hello "},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "world"},
		},
	}
	assert.Equal(t, "hello world", resp.Text())

	empty := &MessageResponse{}
	assert.Equal(t, "", empty.Text())
}

func TestEstimateCost(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 500_000}

	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 0.80+2.00, cost, 1e-9)

	assert.Zero(t, usage.EstimateCost("some-unknown-model"))
}

func TestEstimateCostWithCache(t *testing.T) {
	usage := TokenUsage{
		InputTokens:              100_000,
		CacheCreationInputTokens: 1_000_000,
		CacheReadInputTokens:     2_000_000,
	}

	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	// 0.1*0.80 input + 1.25*0.80 cache write + 2*0.1*0.80 cache read
	assert.InDelta(t, 0.08+1.00+0.16, cost, 1e-9)
}

func TestStatusCode(t *testing.T) {
	assert.Zero(t, StatusCode(nil))
	assert.Zero(t, StatusCode(eris.New("not an api error")))

	apierr := &sdk.Error{StatusCode: 429}
	assert.Equal(t, 429, StatusCode(eris.Wrap(apierr, "anthropic: create message")))
}

func TestCachedSystemBlocks(t *testing.T) {
	blocks := CachedSystemBlocks("You classify emails.")
	assert.Len(t, blocks, 1)
	assert.Equal(t, "You classify emails.", blocks[0].Text)
	assert.Equal(t, "5m", blocks[0].CacheControl.TTL)
}

func TestMessageConversionRoles(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "{"},
	})
	assert.Len(t, msgs, 2)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
}
