package aiq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/eduplatform/examd/internal/model"
)

// OpenAIProvider generates questions through an OpenAI-compatible
// chat-completions API. The model descriptor supplies the credential
// and model identifier, so different descriptors can target different
// backends through one base URL.
type OpenAIProvider struct {
	baseURL string
}

// NewOpenAI creates a provider. An empty baseURL means the default
// OpenAI endpoint.
func NewOpenAI(baseURL string) *OpenAIProvider {
	return &OpenAIProvider{baseURL: baseURL}
}

type wireQuestion struct {
	Text    string       `json:"text"`
	Options []wireOption `json:"options"`
}

type wireOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type wireResponse struct {
	Questions []wireQuestion `json:"questions"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, m model.AIModel, spec model.Specialization, count int) ([]model.Question, error) {
	config := openai.DefaultConfig(m.APIKey)
	if p.baseURL != "" {
		config.BaseURL = p.baseURL
	}
	api := openai.NewClientWithConfig(config)

	resp, err := api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.ModelIdentifier,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildGenerationPrompt(spec, count)},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Generate %d questions.", count)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := cleanJSONContent(resp.Choices[0].Message.Content)
	slog.Debug("LLM generation response", "raw", raw)

	var wire wireResponse
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	if len(wire.Questions) < count {
		return nil, fmt.Errorf("LLM returned %d questions, requested %d", len(wire.Questions), count)
	}

	return draftsFromWire(wire.Questions[:count], spec)
}

// draftsFromWire converts parsed questions into bank drafts, enforcing
// the structural contract on each.
func draftsFromWire(wire []wireQuestion, spec model.Specialization) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(wire))
	for i, wq := range wire {
		if len(wq.Options) < 2 || len(wq.Options) > 4 {
			return nil, fmt.Errorf("question %d: expected 2-4 options, got %d", i, len(wq.Options))
		}
		q := model.Question{
			Text:           wq.Text,
			Specialization: spec,
			Marks:          1,
			Difficulty:     model.DifficultyMedium,
		}
		for _, wo := range wq.Options {
			q.Options = append(q.Options, model.Option{Text: wo.Text, IsCorrect: wo.IsCorrect})
		}
		if err := ValidateDraft(q); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func buildGenerationPrompt(spec model.Specialization, count int) string {
	var sb strings.Builder
	sb.WriteString("You are an exam question generator for an educational platform.\n")
	sb.WriteString(fmt.Sprintf("Generate exactly %d single-choice questions for the %q specialization.\n\n", count, spec))
	sb.WriteString("Respond ONLY with a JSON object of this shape:\n")
	sb.WriteString(`{"questions": [{"text": "...", "options": [{"text": "...", "is_correct": true}, {"text": "...", "is_correct": false}]}]}`)
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("- Each question has 2 to 4 options.\n")
	sb.WriteString("- Exactly one option per question has is_correct true.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanations.\n")
	return sb.String()
}

// cleanJSONContent strips markdown code fences some models wrap
// around their JSON output.
func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
