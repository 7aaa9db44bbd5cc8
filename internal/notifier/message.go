// Package notifier renders the deal digest and delivers it over the
// configured channels. Channels are independent: one failing must not
// stop the others, and the caller learns whether every channel made it.
package notifier

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/pauljones0/zdm-deals-bot/internal/models"
)

// emptyDigestNotice is shown when a run produced no items worth pushing.
const emptyDigestNotice = "暂无优惠信息"

var digestTmpl = template.Must(template.New("digest").Parse(`<html>
<body>
<h2>今日优惠精选</h2>
<table border="1" cellspacing="0" cellpadding="6" style="border-collapse:collapse">
<tr><th>商品</th><th>价格</th><th>商城</th><th>值</th><th>评论</th></tr>
{{- range . }}
<tr>
<td><a href="{{ .URL }}">{{ .Title }}</a></td>
<td><span style="color:red">{{ .Price }}</span></td>
<td>{{ .Merchant }}</td>
<td>{{ .Votes }}</td>
<td>{{ .Comments }}</td>
</tr>
{{- end }}
</table>
</body>
</html>
`))

// RenderDigest renders the HTML digest for a batch of deals. An empty
// batch renders a short notice instead of an empty table.
func RenderDigest(items []models.DealItem) (string, error) {
	if len(items) == 0 {
		return fmt.Sprintf("<html><body><p>%s</p></body></html>", emptyDigestNotice), nil
	}
	var buf strings.Builder
	if err := digestTmpl.Execute(&buf, items); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// Subject builds the digest subject line for the given run date.
func Subject(count int, now time.Time) string {
	return fmt.Sprintf("值得买优惠精选 %s (%d条)", now.Format("2006-01-02"), count)
}
