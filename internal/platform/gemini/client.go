package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/lessonforge/internal/pkg/httpx"
	"github.com/yungbote/lessonforge/internal/platform/envutil"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

type Config struct {
	APIKey      string
	Model       string
	MaxRetries  int
	Temperature float32
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:      envutil.String("GEMINI_API_KEY", ""),
		Model:       envutil.String("GEMINI_MODEL", "gemini-1.5-pro"),
		MaxRetries:  envutil.Int("GEMINI_MAX_RETRIES", 2),
		Temperature: float32(envutil.Float("GEMINI_TEMPERATURE", 0.2)),
	}
}

// Client produces schema-constrained JSON through the Gemini API. It exposes
// the same GenerateJSON shape as the OpenAI client.
type Client struct {
	log        *logger.Logger
	cl         *genai.Client
	model      string
	maxRetries int
	temp       float32
}

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("missing GEMINI_API_KEY")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-pro"
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{
		log:        log.With("service", "GeminiClient", "model", model),
		cl:         cl,
		model:      model,
		maxRetries: cfg.MaxRetries,
		temp:       cfg.Temperature,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cl == nil {
		return nil
	}
	return c.cl.Close()
}

func (c *Client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schema == nil {
		return nil, errors.New("schema required")
	}
	respSchema, err := SchemaFromJSONSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("gemini schema %s: %w", schemaName, err)
	}
	m := c.cl.GenerativeModel(c.model)
	temp := c.temp
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
		ResponseSchema:   respSchema,
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := m.GenerateContent(ctx, genai.Text(user))
		if err != nil {
			lastErr = err
			if !isRetryable(err) || attempt == c.maxRetries {
				return nil, err
			}
			sleepFor := httpx.JitterSleep(time.Duration(attempt+1) * 500 * time.Millisecond)
			c.log.Warn("Gemini request retrying", "schema", schemaName, "attempt", attempt+1, "error", err.Error())
			if err := httpx.Sleep(ctx, sleepFor); err != nil {
				return nil, err
			}
			continue
		}
		txt := firstText(resp)
		if txt == "" {
			return nil, fmt.Errorf("gemini %s: empty response", schemaName)
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(stripCodeFences(txt)), &obj); err != nil {
			return nil, fmt.Errorf("gemini %s: bad JSON: %w", schemaName, err)
		}
		return obj, nil
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return httpx.IsRetryableHTTPStatus(gerr.Code)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal:
		return true
	}
	return httpx.IsRetryableError(err)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok && strings.TrimSpace(string(t)) != "" {
				return string(t)
			}
		}
	}
	return ""
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
