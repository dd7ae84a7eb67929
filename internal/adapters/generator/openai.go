// Package generator реализует бэкенд генерации контента через OpenAI.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	openai "github.com/GVMBT/seo-master-sub004/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
}

// OpenAI реализует domain.Generator.
type OpenAI struct {
	client     chatClient
	model      string
	imageModel string
	log        zerolog.Logger
	pick       func(n int) int
}

var _ domain.Generator = (*OpenAI)(nil)

// NewOpenAI создаёт генератор контента.
func NewOpenAI(client chatClient, model, imageModel string, logger zerolog.Logger) *OpenAI {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	if imageModel == "" {
		imageModel = "dall-e-3"
	}
	return &OpenAI{client: client, model: model, imageModel: imageModel, log: logger, pick: rand.Intn}
}

type contentPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Generate выполняет один тарифицируемый вызов генерации. Изображений может
// быть произведено меньше запрошенного: сбой отдельной картинки не валит
// генерацию целиком.
func (g *OpenAI) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedContent, error) {
	keyword := req.Keyword
	if keyword == "" && len(req.Category.Keywords) > 0 {
		keyword = req.Category.Keywords[g.pick(len(req.Category.Keywords))]
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.7,
		MaxTokens:   maxTokensFor(req.Pipeline),
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPromptFor(req.Pipeline)},
			{Role: openai.RoleUser, Content: userPrompt(req, keyword)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	})
	if err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.GeneratedContent{}, fmt.Errorf("openai completion: пустой ответ")
	}
	var parsed contentPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &parsed); err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("распаковка ответа LLM: %w", err)
	}
	content := domain.GeneratedContent{
		Title: strings.TrimSpace(parsed.Title),
		Body:  strings.TrimSpace(parsed.Body),
	}
	if content.Body == "" {
		return domain.GeneratedContent{}, fmt.Errorf("openai completion: пустой текст")
	}

	for i := 0; i < req.ImagesRequested; i++ {
		prompt := fmt.Sprintf("Фотореалистичная иллюстрация к статье «%s», тема: %s", content.Title, keyword)
		if _, err := g.client.CreateImage(ctx, openai.ImageRequest{Model: g.imageModel, Prompt: prompt, N: 1}); err != nil {
			g.log.Warn().Err(err).Int("index", i).Msg("генерация изображения не удалась")
			continue
		}
		content.ImagesProduced++
	}
	return content, nil
}

func systemPromptFor(pipeline domain.PipelineType) string {
	if pipeline == domain.PipelineSocial {
		return "Ты SMM-редактор малого бизнеса. Пиши живо, коротко, без канцелярита."
	}
	return "Ты SEO-копирайтер. Пиши структурированные статьи с подзаголовками, без воды."
}

func userPrompt(req domain.GenerationRequest, keyword string) string {
	var b strings.Builder
	if req.Pipeline == domain.PipelineSocial {
		fmt.Fprintf(&b, "Напиши пост для соцсетей по ключевой фразе «%s».\n", keyword)
	} else {
		fmt.Fprintf(&b, "Напиши SEO-статью по ключевой фразе «%s».\n", keyword)
	}
	if req.Category.Name != "" {
		fmt.Fprintf(&b, "Рубрика: %s.\n", req.Category.Name)
	}
	if req.WithDescription {
		b.WriteString("Дополнительно включи в текст абзац-описание рубрики.\n")
	} else if req.Category.Description != "" {
		fmt.Fprintf(&b, "Описание бизнеса: %s\n", clipRunes(req.Category.Description, 1000))
	}
	if len(req.Category.PricesJSON) > 0 {
		fmt.Fprintf(&b, "Учитывай прайс (JSON): %s\n", clipRunes(string(req.Category.PricesJSON), 1500))
	}
	b.WriteString(`Верни JSON формата {"title": "...", "body": "..."} без пояснений.`)
	return b.String()
}

func maxTokensFor(pipeline domain.PipelineType) int {
	if pipeline == domain.PipelineSocial {
		return 700
	}
	return 3000
}

func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
