package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"recipost/internal/selectors"
	"recipost/internal/session"
	"recipost/internal/uiaction"
)

const actionTimeout = 10 * time.Second

// Page 将 rod.Page 适配为 uiaction.Page。每次 CDP 调用都带上 ctx 并受 actionTimeout 限制
type Page struct {
	page   *rod.Page
	ctx    context.Context
	closer func() error
}

// Wrap 包装一个已有页面，ctx 取消时所有进行中的调用随之返回；Close 只关闭该页面
func Wrap(ctx context.Context, page *rod.Page) *Page {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Page{page: page.Context(ctx), ctx: ctx}
}

// bounded 返回单次操作使用的页面
func (p *Page) bounded() (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(p.ctx, actionTimeout)
	return p.page.Context(ctx), cancel
}

// element 把查到的节点重新绑定到页面 ctx，使其不受查找时超时的影响
func (p *Page) element(el *rod.Element) *Element {
	return &Element{el: el.Context(p.ctx), ctx: p.ctx}
}

// Navigate 打开 url 并等待页面加载
func (p *Page) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	if err := page.Timeout(30 * time.Second).WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for page load: %w", err)
	}
	return nil
}

// URL 当前页面地址
func (p *Page) URL() (string, error) {
	page, cancel := p.bounded()
	defer cancel()
	info, err := page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Find 立即查找一次，不等待
func (p *Page) Find(sel selectors.Selector) (uiaction.Element, error) {
	var (
		ok  bool
		el  *rod.Element
		err error
	)
	page, cancel := p.bounded()
	defer cancel()
	switch {
	case sel.XPath != "":
		ok, el, err = page.HasX(sel.XPath)
	case sel.Text != "":
		ok, el, err = page.HasR(sel.CSS, regexp.QuoteMeta(sel.Text))
	default:
		ok, el, err = page.Has(sel.CSS)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return p.element(el), nil
}

// Count 统计匹配的节点数
func (p *Page) Count(sel selectors.Selector) (int, error) {
	var (
		els rod.Elements
		err error
	)
	page, cancel := p.bounded()
	defer cancel()
	if sel.XPath != "" {
		els, err = page.ElementsX(sel.XPath)
	} else {
		els, err = page.Elements(sel.CSS)
	}
	if err != nil {
		return 0, err
	}
	if sel.Text == "" {
		return len(els), nil
	}
	n := 0
	for _, el := range els {
		text, err := el.Text()
		if err == nil && strings.Contains(text, sel.Text) {
			n++
		}
	}
	return n, nil
}

// Screenshot 截取当前视口
func (p *Page) Screenshot() ([]byte, error) {
	page, cancel := p.bounded()
	defer cancel()
	return page.Screenshot(false, nil)
}

// ExportState 导出 cookies 与当前源的 localStorage
func (p *Page) ExportState() (session.State, error) {
	var state session.State
	page, cancel := p.bounded()
	defer cancel()

	cookies, err := page.Cookies(nil)
	if err != nil {
		return state, fmt.Errorf("failed to read cookies: %w", err)
	}
	for _, c := range cookies {
		state.Cookies = append(state.Cookies, session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}

	current, err := p.URL()
	if err != nil {
		return state, nil
	}
	origin := originOf(current)
	if origin == "" {
		return state, nil
	}
	val, err := page.Eval(`() => JSON.stringify(Object.assign({}, window.localStorage))`)
	if err != nil {
		return state, nil
	}
	items := map[string]string{}
	if err := json.Unmarshal([]byte(val.Value.Str()), &items); err == nil && len(items) > 0 {
		state.Origins = append(state.Origins, session.Origin{Origin: origin, LocalStorage: items})
	}
	return state, nil
}

// ImportState 恢复 cookies，并逐个源写回 localStorage
func (p *Page) ImportState(ctx context.Context, state session.State) error {
	params := make([]*proto.NetworkCookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}
	if len(params) > 0 {
		page, cancel := p.bounded()
		err := page.SetCookies(params)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to set cookies: %w", err)
		}
	}

	for _, o := range state.Origins {
		if len(o.LocalStorage) == 0 {
			continue
		}
		if err := p.Navigate(ctx, o.Origin); err != nil {
			return fmt.Errorf("failed to open %s: %w", o.Origin, err)
		}
		page, cancel := p.bounded()
		_, err := page.Eval(`(items) => {
			for (const [k, v] of Object.entries(items)) window.localStorage.setItem(k, v);
		}`, o.LocalStorage)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to restore localStorage for %s: %w", o.Origin, err)
		}
	}
	return nil
}

// Close 关闭页面；由 Opener 创建时同时关闭浏览器
func (p *Page) Close() error {
	// the attempt ctx may already be cancelled; closing must still happen
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	err := p.page.Context(ctx).Close()
	if p.closer != nil {
		if cerr := p.closer(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Element 将 rod.Element 适配为 uiaction.Element
type Element struct {
	el  *rod.Element
	ctx context.Context
}

func (e *Element) bounded() (*rod.Element, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(e.ctx, actionTimeout)
	return e.el.Context(ctx), cancel
}

// Click 点击元素，被遮挡时退回 JS click
func (e *Element) Click() error {
	el, cancel := e.bounded()
	defer cancel()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		if _, jsErr := el.Eval(`() => this.click()`); jsErr != nil {
			return fmt.Errorf("%w (js click: %v)", err, jsErr)
		}
	}
	return nil
}

// Type 清空并输入文本；富文本编辑器通过 InsertText 输入，保留换行与 emoji
func (e *Element) Type(text string) error {
	el, cancel := e.bounded()
	defer cancel()
	res, err := el.Eval(`() => this.isContentEditable`)
	if err != nil {
		return err
	}
	if res.Value.Bool() {
		if err := el.Focus(); err != nil {
			return err
		}
		if _, err := el.Eval(`() => { this.innerHTML = ''; }`); err != nil {
			return err
		}
		return el.Page().InsertText(text)
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

// SetFiles 一次性设置所有文件
func (e *Element) SetFiles(paths []string) error {
	el, cancel := e.bounded()
	defer cancel()
	return el.SetFiles(paths)
}

// Visible 元素是否可见
func (e *Element) Visible() (bool, error) {
	el, cancel := e.bounded()
	defer cancel()
	return el.Visible()
}

// Disabled 元素是否被禁用
func (e *Element) Disabled() (bool, error) {
	el, cancel := e.bounded()
	defer cancel()
	return el.Disabled()
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" || !strings.HasPrefix(u.Scheme, "http") {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
