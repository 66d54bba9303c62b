package caption

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/kaptinlin/jsonrepair"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"recipost/internal/recipe"
)

//go:embed prompts/*.md
var promptFS embed.FS

var prompts = template.Must(template.New("").Funcs(template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}).ParseFS(promptFS, "prompts/*.md"))

const (
	detailsSystem = "你是一个专业的食谱信息提取助手，只返回符合格式的 JSON。"
	captionSystem = "你是一个熟练掌握小红书爆款文案风格的美食博主，只返回 JSON。"

	maxSourceRunes = 4000
)

// ErrEmptyResponse means the model returned no choices or no content.
var ErrEmptyResponse = errors.New("language model returned no content")

// Config selects the OpenAI-compatible endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Limits are passed to the caption prompt.
type Limits struct {
	Title int
	Body  int
}

// Details is the structured recipe extracted by the model.
type Details struct {
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
}

// Result is the generated note.
type Result struct {
	Title string `json:"title"`
	Body  string `json:"content"`
}

// Generator turns an extracted recipe into a note caption.
type Generator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// New creates a Generator.
func New(cfg Config, logger *zap.Logger) *Generator {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: openai.NewClientWithConfig(oc), model: cfg.Model, logger: logger}
}

// Generate runs both model calls: structured extraction, then the caption.
func (g *Generator) Generate(ctx context.Context, r *recipe.ExtractedRecipe, limits Limits) (*Result, *Details, error) {
	details, err := g.Details(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	res, err := g.Caption(ctx, r.Title, details, limits)
	if err != nil {
		return nil, details, err
	}
	return res, details, nil
}

// Details asks the model for translated ingredients and steps.
func (g *Generator) Details(ctx context.Context, r *recipe.ExtractedRecipe) (*Details, error) {
	prompt, err := render("details.md", map[string]any{
		"Title": r.Title,
		"Text":  truncateRunes(r.BodyText, maxSourceRunes),
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.complete(ctx, detailsSystem, prompt)
	if err != nil {
		if errors.Is(err, ErrEmptyResponse) {
			return &Details{}, nil
		}
		return nil, fmt.Errorf("failed to extract recipe details: %w", err)
	}
	var d Details
	if err := decodeJSON(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to decode recipe details: %w", err)
	}
	g.logger.Debug("recipe details", zap.Int("ingredients", len(d.Ingredients)), zap.Int("steps", len(d.Steps)))
	return &d, nil
}

// Caption asks the model for a platform-style title and body. The body is
// returned as plain text with hashtags kept.
func (g *Generator) Caption(ctx context.Context, title string, d *Details, limits Limits) (*Result, error) {
	prompt, err := render("caption.md", map[string]any{
		"Title":       title,
		"Ingredients": d.Ingredients,
		"Steps":       d.Steps,
		"TitleLimit":  captionTitleLimit(limits.Title),
		"BodyLimit":   captionBodyLimit(limits.Body),
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.complete(ctx, captionSystem, prompt)
	if err != nil {
		if errors.Is(err, ErrEmptyResponse) {
			return &Result{Title: title, Body: strings.Join(d.Steps, "\n")}, nil
		}
		return nil, fmt.Errorf("failed to generate caption: %w", err)
	}
	var res Result
	if err := decodeJSON(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode caption: %w", err)
	}
	res.Title = strings.TrimSpace(res.Title)
	res.Body = StripMarkdown(res.Body)
	if res.Title == "" {
		res.Title = title
	}
	g.logger.Info("caption generated", zap.String("title", res.Title), zap.Int("body_chars", utf8.RuneCountInString(res.Body)))
	return &res, nil
}

func (g *Generator) complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

var codeFence = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*(.*?)\\s*```\\s*$")

// decodeJSON tolerates code fences and the usual model JSON slips.
func decodeJSON(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return fmt.Errorf("unrepairable JSON: %w", err)
	}
	return json.Unmarshal([]byte(fixed), v)
}

var (
	mdBold    = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdBullet  = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
)

// StripMarkdown removes markdown emphasis, headings, bullets and links.
// Hashtags (#tag without a following space) are kept.
func StripMarkdown(s string) string {
	s = mdBold.ReplaceAllString(s, "$1$2")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdBullet.ReplaceAllString(s, "• ")
	s = mdLink.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// captionTitleLimit leaves the model two characters of headroom below the
// platform limit.
func captionTitleLimit(limit int) int {
	if limit > 4 {
		return limit - 2
	}
	return limit
}

func captionBodyLimit(limit int) int {
	if limit <= 0 || limit > 800 {
		return 800
	}
	return limit
}
