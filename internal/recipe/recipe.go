package recipe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxImages 小红书单篇笔记最多 9 张图
const DefaultMaxImages = 9

const maxPageBytes = 10 << 20

// ExtractedRecipe 从网页提取的菜谱
type ExtractedRecipe struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	BodyText  string   `json:"bodyText"`
	ImageURLs []string `json:"imageUrls"`
	VideoURL  string   `json:"videoUrl,omitempty"`
}

// RenderFunc 使用浏览器渲染页面并返回 HTML，作为 HTTP 抓取失败时的回退
type RenderFunc func(ctx context.Context, url string) (string, error)

// Extractor 菜谱提取器
type Extractor struct {
	client    *http.Client
	render    RenderFunc
	maxImages int
	logger    *zap.Logger
}

// NewExtractor 创建新的 Extractor 实例；render 可为 nil
func NewExtractor(client *http.Client, render RenderFunc, logger *zap.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{client: client, render: render, maxImages: DefaultMaxImages, logger: logger}
}

// Extract 抓取并解析菜谱页面。HTTP 抓取失败（如 403 或反爬页面）时回退到浏览器渲染。
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*ExtractedRecipe, error) {
	target := NormalizeURL(rawURL)

	html, err := e.fetch(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if e.render == nil {
			return nil, err
		}
		e.logger.Info("http fetch failed, rendering in browser", zap.String("url", target), zap.Error(err))
		html, err = e.render(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("failed to render page: %w", err)
		}
	}

	return Parse(target, html, e.maxImages)
}

// fetch 使用浏览器风格的请求头抓取页面
func (e *Extractor) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range pageHeaders {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("failed to fetch page: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	return string(body), nil
}

var pageHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "zh-CN,zh;q=0.9,en;q=0.8",
	"Sec-Ch-Ua":                 `"Chromium";v="122", "Not(A:Brand";v="24", "Google Chrome";v="122"`,
	"Sec-Ch-Ua-Mobile":          "?0",
	"Sec-Ch-Ua-Platform":        `"Windows"`,
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
}

// NormalizeURL 补全协议前缀，默认 https
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "https://" + u
}
