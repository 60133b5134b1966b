package template

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/supplierportal/notify-api/internal/model"
)

var (
	varPattern  = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)
	loopPattern = regexp.MustCompile(`(?s)\{%\s*for\s+([A-Za-z_][A-Za-z0-9_]*)\s+in\s+([A-Za-z_][A-Za-z0-9_.]*)\s*%\}(.*?)\{%\s*endfor\s*%\}`)
)

// Render substitutes context values into the template. Placeholders are
// written {{ name }} or {{ nested.name }}; a {% for item in list %} block
// repeats its body per list element. Unknown names render as "".
// Values are HTML-escaped in the HTML body only.
func Render(tmpl *model.NotificationTemplate, ctx model.JSONMap) model.RenderedContent {
	return model.RenderedContent{
		Subject:  RenderString(tmpl.Subject, ctx, false),
		BodyHTML: RenderString(tmpl.BodyHTML, ctx, true),
		BodyText: RenderString(tmpl.BodyText, ctx, false),
	}
}

// RenderString renders a single template string.
func RenderString(src string, ctx model.JSONMap, escape bool) string {
	if src == "" {
		return ""
	}
	out := loopPattern.ReplaceAllStringFunc(src, func(block string) string {
		m := loopPattern.FindStringSubmatch(block)
		item, listName, body := m[1], m[2], m[3]

		var b strings.Builder
		for _, v := range asList(lookup(ctx, listName)) {
			scope := make(model.JSONMap, len(ctx)+1)
			for k, cv := range ctx {
				scope[k] = cv
			}
			scope[item] = v
			b.WriteString(substitute(body, scope, escape))
		}
		return b.String()
	})
	return substitute(out, ctx, escape)
}

func substitute(src string, ctx model.JSONMap, escape bool) string {
	return varPattern.ReplaceAllStringFunc(src, func(token string) string {
		name := varPattern.FindStringSubmatch(token)[1]
		v := stringify(lookup(ctx, name))
		if escape {
			return html.EscapeString(v)
		}
		return v
	})
}

func lookup(ctx map[string]interface{}, path string) interface{} {
	var cur interface{} = ctx
	for _, part := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]interface{}:
			cur = m[part]
		case model.JSONMap:
			cur = m[part]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

func asList(v interface{}) []interface{} {
	switch l := v.(type) {
	case []interface{}:
		return l
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	}
	return nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; print integers without a fraction
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	case []interface{}, []string, map[string]interface{}:
		return ""
	}
	return fmt.Sprint(v)
}
