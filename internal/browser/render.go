package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// RenderResult 渲染抓取结果
type RenderResult struct {
	HTML     string        // 渲染后的完整 HTML
	Title    string        // 页面标题
	URL      string        // 最终URL
	LoadTime time.Duration // 加载时间
}

// Render 打开页面，等待加载与网络空闲后返回渲染后的 HTML。
// 用于普通 HTTP 抓取被拦截或内容由 JS 生成的菜谱页面。
func (b *Browser) Render(ctx context.Context, url string, timeout time.Duration) (*RenderResult, error) {
	startTime := time.Now()

	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}
	defer page.Close()

	page = page.Context(ctx)
	if err := page.Timeout(timeout).Navigate(url); err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to wait for page load: %w", err)
	}

	// 等待网络空闲，懒加载图片地址填充后再取 HTML
	wait := page.Timeout(timeout).WaitRequestIdle(
		500*time.Millisecond, nil, nil,
		[]proto.NetworkResourceType{proto.NetworkResourceTypeImage, proto.NetworkResourceTypeMedia},
	)
	wait()

	html, err := page.Timeout(timeout).HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to get page HTML: %w", err)
	}

	result := &RenderResult{HTML: html, LoadTime: time.Since(startTime)}
	if info, err := page.Info(); err == nil {
		result.URL = info.URL
		result.Title = info.Title
	}
	return result, nil
}

// RenderHTML 启动一次性浏览器渲染 url，结束后关闭浏览器
func RenderHTML(ctx context.Context, cfg Config, url string, timeout time.Duration) (*RenderResult, error) {
	cfg.Headless = true
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return b.Render(ctx, url, timeout)
}
