package quiz

import (
	"context"

	"github.com/yungbote/quizbridge-backend/internal/modules/quiz/generation"
	"github.com/yungbote/quizbridge-backend/internal/platform/openai"
)

// LLMGenerator adapts the OpenAI client to the generation workflow.
type LLMGenerator struct {
	client openai.Client
}

func NewLLMGenerator(client openai.Client) *LLMGenerator {
	return &LLMGenerator{client: client}
}

func (g *LLMGenerator) Generate(ctx context.Context, p generation.Prompt) (generation.Response, error) {
	temp := p.Temperature
	res, err := g.client.GenerateText(ctx, openai.TextRequest{
		System:      p.System,
		User:        p.User,
		Model:       p.Model,
		Temperature: &temp,
	})
	usage := generation.Usage{Model: res.Model, InputTokens: res.InputTokens, OutputTokens: res.OutputTokens}
	if err != nil {
		return generation.Response{Usage: usage}, err
	}
	return generation.Response{Text: res.Text, Usage: usage}, nil
}
