package recipe

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// flattenTables 将正文中的表格（配料表、营养成分表等）替换为逐行的
// "单元格 / 单元格" 段落，避免 Markdown 转换时丢失行列关系
func flattenTables(main *goquery.Selection) {
	main.Find("table").Each(func(_ int, table *goquery.Selection) {
		// 表头优先取 thead，其次取第一行
		rows := table.Find("thead tr")
		rows = rows.AddSelection(table.Find("tbody tr"))
		if rows.Length() == 0 {
			rows = table.Find("tr")
		}

		var b strings.Builder
		rows.Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				if text := strings.Join(strings.Fields(cell.Text()), " "); text != "" {
					cells = append(cells, text)
				}
			})
			if len(cells) == 0 {
				return
			}
			b.WriteString("<p>")
			b.WriteString(html.EscapeString(strings.Join(cells, " / ")))
			b.WriteString("</p>")
		})
		table.ReplaceWithHtml(b.String())
	})
}
