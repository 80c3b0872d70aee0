package document

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/creastat/receipts"
)

const (
	DefaultOCRModel   = "gpt-4o-mini"
	DefaultOCRTimeout = 30 * time.Second
)

// DefaultOCRPrompt asks the vision model for a verbatim transcription.
const DefaultOCRPrompt = "Attached is a payment receipt. " +
	"Return only the plain text you can read on it, line by line, exactly as written. " +
	"Do not summarize, translate or add commentary."

// ImageConfig configures the OCR text source.
type ImageConfig struct {
	APIKey  string
	BaseURL string // OpenAI-compatible endpoint; empty uses the OpenAI default
	Model   string
	Prompt  string
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// ImageSource reads receipt images through an OpenAI-compatible vision model.
type ImageSource struct {
	client  openai.Client
	model   string
	prompt  string
	timeout time.Duration
}

// NewImageSource creates an OCR text source.
func NewImageSource(cfg ImageConfig) (*ImageSource, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OCR API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOCRModel
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultOCRPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOCRTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &ImageSource{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		prompt:  cfg.Prompt,
		timeout: cfg.Timeout,
	}, nil
}

// ExtractText implements TextSource.
func (s *ImageSource) ExtractText(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", receipts.ErrEmptyDocument)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(s.prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL(data),
				}),
			}),
		},
	}

	completion, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("ocr returned no choices")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func dataURL(data []byte) string {
	mediaType := mimetype.Detect(data).String()
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = "image/png"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

var _ TextSource = (*ImageSource)(nil)
