package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"recipost/internal/uiaction"
)

// DefaultUserAgent 默认桌面 Chrome UA
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config 浏览器启动参数
type Config struct {
	Headless    bool   // 无界面模式，首次登录必须关闭
	ProxyURL    string // 代理URL
	UserDataDir string // Chrome 用户数据目录，为空时使用临时目录
	UserAgent   string // 为空时使用 DefaultUserAgent
	Bin         string // Chrome 可执行文件路径，为空时自动下载/查找
}

// Browser 封装 rod.Browser 实例
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      Config
}

// New 按配置启动并连接浏览器
func New(cfg Config) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-blink-features", "AutomationControlled")

	if cfg.ProxyURL != "" {
		l = l.Proxy(cfg.ProxyURL)
	}
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect browser: %w", err)
	}

	return &Browser{
		browser:  browser,
		launcher: l,
		cfg:      cfg,
	}, nil
}

// Headless 是否为无界面模式
func (b *Browser) Headless() bool {
	return b.cfg.Headless
}

// NewPage 创建新的浏览器页面，并设置 UA 与 webdriver 标记
func (b *Browser) NewPage() (*rod.Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	ua := b.cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
	_, _ = page.EvalOnNewDocument(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`)
	return page, nil
}

// Close 关闭浏览器并清理资源
func (b *Browser) Close() error {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			b.launcher.Kill()
			return err
		}
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return nil
}

// Opener 每次发布尝试启动一个独立浏览器，页面关闭时浏览器随之退出
type Opener struct {
	Config Config
	Logger *zap.Logger
}

// OpenPage 启动浏览器并返回实现 uiaction.Page 的页面
func (o *Opener) OpenPage(ctx context.Context) (uiaction.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := New(o.Config)
	if err != nil {
		return nil, err
	}
	page, err := b.NewPage()
	if err != nil {
		b.Close()
		return nil, err
	}
	if o.Logger != nil {
		o.Logger.Debug("browser opened", zap.Bool("headless", o.Config.Headless), zap.String("proxy", o.Config.ProxyURL))
	}
	p := Wrap(ctx, page)
	p.closer = b.Close
	return p, nil
}
