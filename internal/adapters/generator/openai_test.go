package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	openai "github.com/GVMBT/seo-master-sub004/internal/infra/openai"
)

type stubClient struct {
	completion openai.ChatCompletionResponse
	chatErr    error
	imageErr   error
	imageCalls int
	lastPrompt string
}

func (s *stubClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastPrompt = req.Messages[len(req.Messages)-1].Content
	if s.chatErr != nil {
		return openai.ChatCompletionResponse{}, s.chatErr
	}
	return s.completion, nil
}

func (s *stubClient) CreateImage(_ context.Context, _ openai.ImageRequest) (openai.ImageResponse, error) {
	s.imageCalls++
	if s.imageErr != nil {
		return openai.ImageResponse{}, s.imageErr
	}
	return openai.ImageResponse{Data: []openai.ImageData{{URL: "https://img.example.com/1.png"}}}, nil
}

func completionWith(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatMessage{Content: content}},
	}}
}

func TestGenerateParsesContentAndCountsImages(t *testing.T) {
	client := &stubClient{completion: completionWith(`{"title": "Как выбрать диван", "body": "Текст статьи"}`)}
	gen := NewOpenAI(client, "", "", zerolog.Nop())

	content, err := gen.Generate(context.Background(), domain.GenerationRequest{
		Pipeline:        domain.PipelineArticle,
		Category:        domain.Category{Keywords: []string{"купить диван"}},
		ImagesRequested: 3,
	})
	if err != nil {
		t.Fatalf("генерация: %v", err)
	}
	if content.Title != "Как выбрать диван" || content.Body != "Текст статьи" {
		t.Fatalf("контент распакован неверно: %+v", content)
	}
	if content.ImagesProduced != 3 || client.imageCalls != 3 {
		t.Fatalf("ожидали 3 изображения, произведено %d за %d вызовов", content.ImagesProduced, client.imageCalls)
	}
}

func TestGenerateImageFailureIsPartial(t *testing.T) {
	client := &stubClient{
		completion: completionWith(`{"title": "Т", "body": "Б"}`),
		imageErr:   errors.New("квота исчерпана"),
	}
	gen := NewOpenAI(client, "", "", zerolog.Nop())

	content, err := gen.Generate(context.Background(), domain.GenerationRequest{
		Pipeline:        domain.PipelineArticle,
		Category:        domain.Category{Keywords: []string{"к"}},
		ImagesRequested: 2,
	})
	if err != nil {
		t.Fatalf("сбой изображений не должен валить генерацию: %v", err)
	}
	if content.ImagesProduced != 0 {
		t.Fatalf("ожидали 0 произведённых изображений, получили %d", content.ImagesProduced)
	}
}

func TestGenerateRejectsMalformedAnswer(t *testing.T) {
	client := &stubClient{completion: completionWith("просто текст без JSON")}
	gen := NewOpenAI(client, "", "", zerolog.Nop())

	_, err := gen.Generate(context.Background(), domain.GenerationRequest{
		Pipeline: domain.PipelineSocial,
		Category: domain.Category{Keywords: []string{"к"}},
	})
	if err == nil {
		t.Fatal("ответ без JSON должен быть ошибкой")
	}
}

func TestGeneratePromptCarriesPricesAndDescription(t *testing.T) {
	client := &stubClient{completion: completionWith(`{"title": "Т", "body": "Б"}`)}
	gen := NewOpenAI(client, "", "", zerolog.Nop())

	_, err := gen.Generate(context.Background(), domain.GenerationRequest{
		Pipeline: domain.PipelineArticle,
		Category: domain.Category{
			Keywords:    []string{"к"},
			Description: "мягкая мебель на заказ",
			PricesJSON:  []byte(`{"диван": 50000}`),
		},
	})
	if err != nil {
		t.Fatalf("генерация: %v", err)
	}
	for _, fragment := range []string{"мягкая мебель на заказ", "диван"} {
		if !strings.Contains(client.lastPrompt, fragment) {
			t.Fatalf("в промпте нет фрагмента %q:\n%s", fragment, client.lastPrompt)
		}
	}
}
