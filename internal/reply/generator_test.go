package reply

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractReplyStrictJSON(t *testing.T) {
	assert.Equal(t, "Check-in is from 3pm.",
		extractReply(`{"reply": "Check-in is from 3pm."}`))
}

func TestExtractReplyFencedJSON(t *testing.T) {
	response := "```json\n{\"reply\": \"Yes, parking is free.\"}\n```"
	assert.Equal(t, "Yes, parking is free.", extractReply(response))
}

func TestExtractReplyRepairedJSON(t *testing.T) {
	// Trailing comma and single quotes are typical model damage.
	response := `{'reply': 'We allow pets.',}`
	assert.Equal(t, "We allow pets.", extractReply(response))
}

func TestExtractReplyPlainProse(t *testing.T) {
	assert.Equal(t, "The wifi password is on the fridge.",
		extractReply("The wifi password is on the fridge."))
}

func TestExtractReplyRejectsJSONFragment(t *testing.T) {
	assert.Equal(t, "", extractReply(`{"broken": `))
}

func TestBuildPromptIncludesContext(t *testing.T) {
	prompt := buildPrompt("Is late checkout ok?", ListingContext{
		ListingName:    "Garden Studio",
		GuestName:      "Mina",
		RecentMessages: []string{"guest: hello", "host: hi"},
	})

	assert.Contains(t, prompt, "Garden Studio")
	assert.Contains(t, prompt, "Mina")
	assert.Contains(t, prompt, "guest: hello")
	assert.Contains(t, prompt, "Is late checkout ok?")
	assert.True(t, strings.Contains(prompt, `{"reply"`), "prompt must demand JSON output")
}

func TestBuildPromptMinimal(t *testing.T) {
	prompt := buildPrompt("Hello?", ListingContext{})
	assert.NotContains(t, prompt, "Listing:")
	assert.NotContains(t, prompt, "Recent conversation:")
	assert.Contains(t, prompt, "Hello?")
}

func TestNewLangchainGeneratorRejectsUnknownProvider(t *testing.T) {
	_, err := NewLangchainGenerator("some-llm", "key", "model", 0.4)
	assert.Error(t, err)
}
