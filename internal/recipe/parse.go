package recipe

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// 常见的正文容器，按优先级排列
var contentSelectors = []string{
	"article",
	"main",
	".recipe-content",
	".post-content",
	".entry-content",
	"#recipe-block",
	`[class*="recipe"]`,
	`[class*="content"]`,
}

var (
	// 祖先节点 class 含这些关键词的图片不属于正文
	excludeClasses = []string{"sidebar", "widget", "related", "recommended", "footer", "nav", "author", "promo"}
	// 图片 URL 含这些关键词时视为图标或缩略图
	skipWords = []string{"icon", "logo", "avatar", "gif", "svg", "thumb", "small", "150x150", "300x300"}

	wpSizeSuffix = regexp.MustCompile(`(?i)-\d+x\d+\.(jpg|jpeg|png)$`)
	mp4InScript  = regexp.MustCompile(`https?://[^\s'"]+\.mp4[^\s'"]*`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
)

// Parse 从 HTML 中提取标题、正文、视频与图片
func Parse(pageURL, html string, maxImages int) (*ExtractedRecipe, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	r := &ExtractedRecipe{URL: pageURL, Title: extractTitle(doc)}

	main := doc.Selection
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			main = found
			break
		}
	}

	r.VideoURL = findVideo(main, base)
	r.ImageURLs = findImages(doc, main, base, maxImages)

	main.Find("script, style, nav, footer, header, aside, noscript").Remove()
	text, err := toText(main)
	if err != nil {
		return nil, err
	}
	r.BodyText = text

	if r.Title == "" && r.BodyText == "" {
		return nil, fmt.Errorf("no recipe content found at %s", pageURL)
	}
	return r, nil
}

func extractTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// findVideo 依次尝试 <video>/<source>、data-video-url 属性和脚本中的 .mp4 地址
func findVideo(main *goquery.Selection, base *url.URL) string {
	var found string
	main.Find("video").EachWithBreak(func(_ int, v *goquery.Selection) bool {
		if src, ok := v.Find("source[src]").First().Attr("src"); ok && src != "" {
			found = src
			return false
		}
		if src, ok := v.Attr("src"); ok && src != "" {
			found = src
			return false
		}
		return true
	})
	if found == "" {
		if src, ok := main.Find("[data-video-url]").First().Attr("data-video-url"); ok {
			found = src
		}
	}
	if found == "" {
		main.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if m := mp4InScript.FindString(s.Text()); m != "" {
				found = m
				return false
			}
			return true
		})
	}
	if found == "" {
		return ""
	}
	return resolve(base, found)
}

// findImages 收集正文图片：跳过侧栏/页脚等区域和图标类图片，去掉 WordPress 尺寸后缀，去重并限量
func findImages(doc *goquery.Document, main *goquery.Selection, base *url.URL, maxImages int) []string {
	var images []string
	seen := map[string]bool{}

	candidates := main.Find("img").AddSelection(doc.Find("img.featured-image"))
	candidates.Each(func(_ int, img *goquery.Selection) {
		if maxImages > 0 && len(images) >= maxImages {
			return
		}
		if !img.HasClass("featured-image") && outsideContent(img) {
			return
		}

		src := firstAttr(img, "data-lazy-src", "src", "data-src")
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		src = resolve(base, src)
		if !strings.HasPrefix(src, "http") {
			return
		}
		lower := strings.ToLower(src)
		for _, w := range skipWords {
			if strings.Contains(lower, w) {
				return
			}
		}
		src = wpSizeSuffix.ReplaceAllString(src, ".$1")
		if seen[src] {
			return
		}
		seen[src] = true
		images = append(images, src)
	})
	return images
}

func outsideContent(img *goquery.Selection) bool {
	outside := false
	img.Parents().EachWithBreak(func(_ int, p *goquery.Selection) bool {
		switch goquery.NodeName(p) {
		case "aside", "footer", "nav":
			outside = true
			return false
		}
		class := strings.ToLower(p.AttrOr("class", ""))
		for _, exc := range excludeClasses {
			if strings.Contains(class, exc) {
				outside = true
				return false
			}
		}
		return true
	})
	return outside
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(s.AttrOr(n, "")); v != "" {
			return v
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// toText 将正文 HTML 转为 Markdown 文本，供语言模型解析
func toText(main *goquery.Selection) (string, error) {
	flattenTables(main)
	html, err := main.Html()
	if err != nil {
		return "", fmt.Errorf("failed to read content HTML: %w", err)
	}
	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to text: %w", err)
	}
	text = blankLines.ReplaceAllString(strings.TrimSpace(text), "\n\n")
	return text, nil
}
