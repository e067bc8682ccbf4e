// Package categorize assigns categories to new transactions that arrive without one.
package categorize

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/forPelevin/gomoji"
	"github.com/helpcomp/teller-dashboard/config"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// OpenAI request counters for the metrics exporter.
var (
	APICalls  atomic.Uint64
	APIErrors atomic.Uint64
)

type Result struct {
	Merchant string
	Category string
	Skip     bool
}

type openAIResponse struct {
	Merchant string `json:"Merchant"`
	Category string `json:"Category"`
}

type Categorizer struct {
	cfg     *config.MasterConfig
	oai     *openai.Client
	model   string
	timeout time.Duration
}

// New returns a Categorizer. oai may be nil, in which case only config rules apply.
func New(cfg *config.MasterConfig, oai *openai.Client, model string) *Categorizer {
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &Categorizer{cfg: cfg, oai: oai, model: model, timeout: 30 * time.Second}
}

// Categorize looks up description in the configured rules first and asks the model
// only when no rule matches. Failures yield an empty Result.
func (c *Categorizer) Categorize(ctx context.Context, description string) Result {
	if c == nil || description == "" {
		return Result{}
	}

	if rule, ok := c.cfg.MatchCategory(description); ok {
		if rule.Skip {
			return Result{Skip: true}
		}
		return Result{Category: rule.Category}
	}

	categories := c.cfg.CategoryNames()
	if c.oai == nil || len(categories) == 0 {
		return Result{}
	}

	var prompt strings.Builder
	prompt.WriteString("I want to categorize transactions on my bank account. Given the following transaction: ")
	prompt.WriteString(description)
	prompt.WriteString("\n\n\"Merchant\" is your best guess at the merchant the bank transaction stemmed from. ")
	prompt.WriteString("When the payment was made via a payment service like PayPal only show the merchant name, not the payment service used. ")
	prompt.WriteString("\"Category\" is the category this transaction falls under, chosen from the following list: ")
	prompt.WriteString(strings.Join(categories, ", "))
	prompt.WriteString("\nChoose only one merchant and category. Respond only in JSON.")

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	APICalls.Add(1)
	var text string
	if c.model == openai.GPT3Dot5TurboInstruct {
		resp, err := c.oai.CreateCompletion(ctx, openai.CompletionRequest{
			Model:     c.model,
			Prompt:    prompt.String(),
			MaxTokens: 256,
		})
		if err != nil {
			APIErrors.Add(1)
			log.Error().Err(err).Msg("Error with OpenAI completion request")
			return Result{}
		}
		if len(resp.Choices) == 0 {
			return Result{}
		}
		text = resp.Choices[0].Text
	} else {
		resp, err := c.oai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt.String()},
			},
		})
		if err != nil {
			APIErrors.Add(1)
			log.Error().Err(err).Msg("Error with OpenAI chat request")
			return Result{}
		}
		if len(resp.Choices) != 1 {
			log.Error().Int("Choices", len(resp.Choices)).Msg("Unexpected number of choices")
			return Result{}
		}
		text = resp.Choices[0].Message.Content
	}

	rsp, ok := parseResponse(text)
	if !ok {
		log.Warn().Str("Description", description).Msg("OpenAI responded with an invalid JSON response")
		return Result{}
	}

	category := Canonical(rsp.Category, categories)
	log.Info().
		Str("Type", "Categorize").
		Str("Merchant", rsp.Merchant).
		Str("Category", category).
		Msg("🤖 Categorized transaction")
	return Result{Merchant: rsp.Merchant, Category: category}
}

// Some models wrap their JSON in a fenced code block.
func parseResponse(text string) (openAIResponse, bool) {
	text = strings.TrimSpace(text)
	if strings.Contains(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```JSON")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	var rsp openAIResponse
	if err := json.Unmarshal([]byte(text), &rsp); err != nil {
		return openAIResponse{}, false
	}
	return rsp, true
}

// Canonical returns the entry of known matching name once emoji and leading spaces
// are ignored, or "" when there is none.
func Canonical(name string, known []string) string {
	want := normalize(name)
	if want == "" {
		return ""
	}
	for _, k := range known {
		if normalize(k) == want {
			return k
		}
	}
	return ""
}

func normalize(s string) string {
	return strings.TrimLeft(gomoji.RemoveEmojis(s), " ")
}
