package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/model"
)

func TestRender(t *testing.T) {
	tmpl := &model.NotificationTemplate{
		Subject:  "Approved - {{ business_name }}",
		BodyHTML: "<p>Dear {{business_name}},</p><p>{{ reason }}</p>",
		BodyText: "Dear {{ business_name }}, code {{ tracking_code }}",
	}
	ctx := model.JSONMap{"business_name": "Tom & Jerry <Ltd>", "tracking_code": "SUP-1"}

	out := Render(tmpl, ctx)
	assert.Equal(t, "Approved - Tom & Jerry <Ltd>", out.Subject)
	assert.Equal(t, "<p>Dear Tom &amp; Jerry &lt;Ltd&gt;,</p><p></p>", out.BodyHTML)
	assert.Equal(t, "Dear Tom & Jerry <Ltd>, code SUP-1", out.BodyText)
}

func TestRenderString(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ctx  model.JSONMap
		want string
	}{
		{"missing variable", "Hi {{ name }}!", model.JSONMap{}, "Hi !"},
		{"nested", "{{ application.company }}", model.JSONMap{"application": map[string]interface{}{"company": "Acme"}}, "Acme"},
		{"nested missing", "[{{ application.company }}]", model.JSONMap{"application": "flat"}, "[]"},
		{"integer", "{{ count }} docs", model.JSONMap{"count": float64(3)}, "3 docs"},
		{"float", "{{ cost }}", model.JSONMap{"cost": 0.25}, "0.25"},
		{"loop", "{% for d in docs %}- {{ d }}\n{% endfor %}", model.JSONMap{"docs": []interface{}{"FDA", "ISO"}}, "- FDA\n- ISO\n"},
		{"loop over strings", "{% for d in docs %}{{ d }};{% endfor %}", model.JSONMap{"docs": []string{"a", "b"}}, "a;b;"},
		{"loop missing list", "x{% for d in docs %}{{ d }}{% endfor %}y", model.JSONMap{}, "xy"},
		{"loop sees outer scope", "{% for d in docs %}{{ who }}:{{ d }} {% endfor %}", model.JSONMap{"who": "ops", "docs": []string{"a"}}, "ops:a "},
		{"not a placeholder", "{ name } {{ 1bad }}", model.JSONMap{"name": "x"}, "{ name } {{ 1bad }}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderString(tt.src, tt.ctx, false))
		})
	}
}

func TestRenderFromStoredContext(t *testing.T) {
	var ctx model.JSONMap
	require.NoError(t, json.Unmarshal([]byte(`{"business_name":"Acme","missing_documents":["FDA certificate","Tax ID"]}`), &ctx))

	var docs *model.NotificationTemplate
	for _, d := range Defaults() {
		if d.NotificationType == model.TypeDocumentsRequested {
			d := d
			docs = &d
		}
	}
	require.NotNil(t, docs)

	out := Render(docs, ctx)
	assert.Equal(t, "Additional Documents Required - Acme", out.Subject)
	assert.Contains(t, out.BodyHTML, "<li>FDA certificate</li>")
	assert.Contains(t, out.BodyText, "- Tax ID")
}
