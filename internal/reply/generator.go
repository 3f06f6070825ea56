// Package reply adapts the external reply-generation service. The core
// treats generation failures as opaque: no retries or backoff live here.
package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// ListingContext is what the generator knows about the conversation beyond
// the guest's message.
type ListingContext struct {
	ListingName    string
	GuestName      string
	RecentMessages []string
}

// Generator produces reply text for a guest message.
type Generator interface {
	GenerateReply(ctx context.Context, guestMessage string, listingCtx ListingContext) (string, error)
}

// LangchainGenerator implements Generator over a langchaingo model.
type LangchainGenerator struct {
	llm         llms.Model
	temperature float64
}

// NewLangchainGenerator creates a generator for the configured provider.
func NewLangchainGenerator(provider, apiKey, model string, temperature float64) (*LangchainGenerator, error) {
	var llm llms.Model
	var err error

	switch provider {
	case "openai", "":
		llm, err = openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	case "googleai":
		llm, err = googleai.New(context.Background(), googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &LangchainGenerator{llm: llm, temperature: temperature}, nil
}

// structuredReply is the JSON shape the model is asked to produce. Models
// drift from strict JSON often enough that responses go through repair
// before parsing is abandoned.
type structuredReply struct {
	Reply string `json:"reply"`
}

// GenerateReply produces reply text for a guest message with listing context.
func (g *LangchainGenerator) GenerateReply(ctx context.Context, guestMessage string, listingCtx ListingContext) (string, error) {
	prompt := buildPrompt(guestMessage, listingCtx)

	response, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithTemperature(g.temperature))
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}

	text := extractReply(response)
	if text == "" {
		return "", fmt.Errorf("LLM returned an empty reply")
	}
	return text, nil
}

// extractReply pulls the reply text out of the model output: strict JSON
// first, repaired JSON second, raw text as the last resort.
func extractReply(response string) string {
	raw := strings.TrimSpace(response)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed structuredReply
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil && parsed.Reply != "" {
		return strings.TrimSpace(parsed.Reply)
	}

	if repaired, err := jsonrepair.JSONRepair(raw); err == nil {
		if err := json.Unmarshal([]byte(repaired), &parsed); err == nil && parsed.Reply != "" {
			log.Debug().Msg("reply JSON required repair")
			return strings.TrimSpace(parsed.Reply)
		}
	}

	// Some models answer in plain prose despite the instruction; that text
	// is still a usable reply as long as it is not a JSON fragment.
	if strings.HasPrefix(raw, "{") {
		return ""
	}
	return raw
}

func buildPrompt(guestMessage string, listingCtx ListingContext) string {
	var b strings.Builder
	b.WriteString("You are a vacation-rental host assistant answering a guest message.\n")
	if listingCtx.ListingName != "" {
		fmt.Fprintf(&b, "Listing: %s\n", listingCtx.ListingName)
	}
	if listingCtx.GuestName != "" {
		fmt.Fprintf(&b, "Guest: %s\n", listingCtx.GuestName)
	}
	if len(listingCtx.RecentMessages) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range listingCtx.RecentMessages {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	fmt.Fprintf(&b, "\nGuest message:\n%s\n\n", guestMessage)
	b.WriteString(`Answer helpfully and concisely in the guest's language. Respond with JSON only: {"reply": "<your reply text>"}`)
	return b.String()
}
