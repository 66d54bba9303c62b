package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"recipost/internal/publish"
)

// Draft is a generated note that has not been sent anywhere.
type Draft struct {
	SourceURL   string   `json:"sourceUrl"`
	SourceTitle string   `json:"sourceTitle"`
	Title       string   `json:"title"`
	Body        string   `json:"content"`
	VideoURL    string   `json:"videoUrl,omitempty"`
	ImageURLs   []string `json:"imageUrls"`
	Ingredients []string `json:"ingredients,omitempty"`
	Steps       []string `json:"steps,omitempty"`
	ImageLimit  int      `json:"-"`
}

func (d *Draft) ToText() (string, error) {
	return d.Title + "\n\n" + d.Body, nil
}

// ToMarkdown renders the review report: title, body, video link and image
// links.
func (d *Draft) ToMarkdown() (string, error) {
	var b strings.Builder
	b.WriteString("## 生成的笔记草稿\n\n")
	b.WriteString("### 标题\n")
	b.WriteString(d.Title + "\n\n")
	b.WriteString("### 正文\n")
	b.WriteString(d.Body + "\n\n")
	b.WriteString("### 提取的视频链接\n")
	if d.VideoURL != "" {
		b.WriteString(d.VideoURL + "\n\n")
	} else {
		b.WriteString("未找到视频\n\n")
	}
	if d.ImageLimit > 0 {
		fmt.Fprintf(&b, "### 提取的图片链接 (前%d张)\n", d.ImageLimit)
	} else {
		b.WriteString("### 提取的图片链接\n")
	}
	for _, u := range d.ImageURLs {
		b.WriteString(u + "\n")
	}
	return b.String(), nil
}

func (d *Draft) ToJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Report is the result of a publish or save-draft run.
type Report struct {
	Draft      *Draft          `json:"draft"`
	MediaPaths []string        `json:"mediaPaths"`
	Outcome    publish.Outcome `json:"outcome"`
}

// Summary is a one-paragraph description of the outcome.
func (r *Report) Summary() string {
	o := r.Outcome
	switch o.Kind {
	case publish.Published:
		if o.URL != "" {
			return fmt.Sprintf("已发布: %s\n链接: %s\n截图: %s", o.Title, o.URL, o.ScreenshotPath)
		}
		return fmt.Sprintf("已发布: %s\n截图: %s", o.Title, o.ScreenshotPath)
	case publish.Drafted:
		return fmt.Sprintf("已存入草稿箱: %s\n截图: %s", o.Title, o.ScreenshotPath)
	default:
		return fmt.Sprintf("发布失败 [%s] 阶段 %s: %s\n截图: %s", o.ErrorKind, o.Stage, o.Reason, o.ScreenshotPath)
	}
}

func (r *Report) ToText() (string, error) {
	return r.Summary(), nil
}

func (r *Report) ToMarkdown() (string, error) {
	md, err := r.Draft.ToMarkdown()
	if err != nil {
		return "", err
	}
	return md + "\n### 发布结果\n" + r.Summary() + "\n", nil
}

func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
