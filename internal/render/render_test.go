package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) Value {
	t.Helper()
	v, err := Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func TestNormalize(t *testing.T) {
	t.Run("should never return an empty message", func(t *testing.T) {
		inputs := []string{
			`null`, `true`, `false`, `0`, `42`, `-1.5`, `""`, `"  "`, `"ok"`,
			`[]`, `[[]]`, `[null]`, `[1,2,3]`, `{}`, `{"reply":""}`, `{"reply":7}`,
			`{"dish":null}`, `{"dish":"x"}`, `{"dish":{}}`, `{"output":null}`,
			`{"json":0,"output":false}`, `[[[[["deep"]]]]]`, `{"a":{"b":[1,{"c":null}]}}`,
		}
		for _, in := range inputs {
			var msg Message
			assert.NotPanics(t, func() { msg = Normalize(mustParse(t, in)) }, in)
			assert.NotEmpty(t, msg.HTML, in)
			assert.NotEmpty(t, msg.Tier, in)
		}
	})

	t.Run("should render the empty marker for empty values", func(t *testing.T) {
		for _, in := range []string{`{}`, `[]`, `null`, `[{}]`, `{"output":{}}`, `""`, `false`} {
			msg := Normalize(mustParse(t, in))
			assert.Equal(t, NoResponse, msg.HTML, in)
			assert.Equal(t, TierEmpty, msg.Tier, in)
		}
	})

	t.Run("should fall back when the value cannot be serialized", func(t *testing.T) {
		inf := Value{kind: Number, number: "+Inf"}
		msg := Normalize(ObjectValue(Member{Key: "n", Value: inf}))
		assert.Equal(t, NoResponse, msg.HTML)
	})

	t.Run("should not mutate its input", func(t *testing.T) {
		v := mustParse(t, `[{"output":{"dish":{"nombre":"A"}}}]`)
		before, err := v.MarshalJSON()
		require.NoError(t, err)

		first := Normalize(v)
		second := Normalize(v)

		after, err := v.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, string(before), string(after))
		assert.Equal(t, first, second)
	})

	t.Run("should be safe for concurrent use", func(t *testing.T) {
		v := mustParse(t, `{"dish":{"nombre":"Sopa","pasos":["Hervir"]}}`)
		want := Normalize(v)

		done := make(chan Message, 16)
		for i := 0; i < cap(done); i++ {
			go func() { done <- Normalize(v) }()
		}
		for i := 0; i < cap(done); i++ {
			assert.Equal(t, want, <-done)
		}
		assert.True(t, strings.HasPrefix(want.HTML, "<h4>"))
	})
}

func TestNormalizeWrappers(t *testing.T) {
	want := Normalize(mustParse(t, `{"reply":"hi"}`))

	t.Run("should render every known envelope like the bare reply", func(t *testing.T) {
		assert.Equal(t, `<div class="reply-block">hi</div>`, want.HTML)
		assert.Equal(t, TierReply, want.Tier)

		for _, in := range []string{
			`[{"reply":"hi"}]`,
			`{"output":{"reply":"hi"}}`,
			`{"json":{"reply":"hi"}}`,
			`[{"json":{"output":{"reply":"hi"}}}]`,
			`{"output":"hi"}`,
			`"hi"`,
			`["hi"]`,
		} {
			assert.Equal(t, want, Normalize(mustParse(t, in)), in)
		}
	})

	t.Run("should stop unwrapping after three layers", func(t *testing.T) {
		msg := Normalize(mustParse(t, `[[{"json":{"output":{"reply":"hi"}}}]]`))
		assert.Equal(t, TierDump, msg.Tier)
		assert.Contains(t, msg.HTML, "&quot;output&quot;")
		assert.NotEqual(t, want, msg)
	})
}

func TestNormalizeReply(t *testing.T) {
	t.Run("should insert reply markup verbatim", func(t *testing.T) {
		msg := Normalize(mustParse(t, `{"reply":"<b>hola</b>"}`))
		assert.Contains(t, msg.HTML, "<b>hola</b>")
	})

	t.Run("should win over a dish", func(t *testing.T) {
		msg := Normalize(mustParse(t, `{"reply":"texto","dish":{"nombre":"Guiso"}}`))
		assert.Equal(t, TierReply, msg.Tier)
		assert.NotContains(t, msg.HTML, "Guiso")
	})

	t.Run("should fall through to the dish when blank", func(t *testing.T) {
		msg := Normalize(mustParse(t, `{"reply":"   ","dish":{"nombre":"Guiso"}}`))
		assert.Equal(t, TierDish, msg.Tier)
		assert.Contains(t, msg.HTML, "Guiso")
	})
}

func TestNormalizeDish(t *testing.T) {
	t.Run("should fill in defaults", func(t *testing.T) {
		msg := Normalize(mustParse(t,
			`{"dish":{"nombre":"Tostado","metodo":"plancha","ingredientes_usados":["huevo","pan"]}}`))

		assert.Equal(t, TierDish, msg.Tier)
		assert.Contains(t, msg.HTML, "Tostado")
		assert.Contains(t, msg.HTML, "plancha")
		assert.Contains(t, msg.HTML, "verduras/frutas ½")
		assert.Contains(t, msg.HTML, "proteínas ¼")
		assert.Contains(t, msg.HTML, "cereales/tubérculos ¼")
		assert.Contains(t, msg.HTML, "<ul><li>huevo</li><li>pan</li></ul>")
		assert.Contains(t, msg.HTML, DefaultDrink)
		assert.NotContains(t, msg.HTML, "<ol>")
		assert.NotContains(t, msg.HTML, "Alternativas")
		assert.NotContains(t, msg.HTML, "Consejos")
	})

	t.Run("should use every default for an empty dish", func(t *testing.T) {
		msg := Normalize(mustParse(t, `{"dish":{}}`))
		assert.Equal(t,
			"<h4>🍽️ Plato sugerido</h4>"+
				"<p><b>Método:</b> plancha | <b>Bebida:</b> agua segura</p>"+
				"<p><b>Proporciones:</b> verduras/frutas ½, proteínas ¼, cereales/tubérculos ¼</p>",
			msg.HTML)
	})

	t.Run("should keep whitespace-only names", func(t *testing.T) {
		msg := Normalize(mustParse(t, `{"dish":{"nombre":"  ","metodo":" "}}`))
		assert.Contains(t, msg.HTML, "<h4>🍽️   </h4>")
		assert.Contains(t, msg.HTML, "<b>Método:</b>   | ")
		assert.NotContains(t, msg.HTML, DefaultDishName)
	})

	t.Run("should render a full dish", func(t *testing.T) {
		in := `[{"output":{
			"normalized":{"dish":{
				"nombre":"Tortilla",
				"metodo":"horno",
				"bebida":"agua con limón",
				"proporciones":{"verduras_y_frutas":0.5,"proteinas":"mucha","cereales_tuberculos_legumbres":0.25},
				"ingredientes_usados":["papa","huevo"],
				"pasos":["Cortar","Hornear"]
			}},
			"alternativas_si_falta_algo":["batata en lugar de papa"],
			"consejos":{"higiene":"Lavar las manos","sodio":"Poca sal","azucar":"  "}
		}}]`
		msg := Normalize(mustParse(t, in))

		require.Equal(t, TierDish, msg.Tier)
		assert.Equal(t,
			"<h4>🍽️ Tortilla</h4>"+
				"<p><b>Método:</b> horno | <b>Bebida:</b> agua con limón</p>"+
				"<p><b>Proporciones:</b> verduras/frutas 0.5, proteínas ¼, cereales/tubérculos 0.25</p>"+
				"<p><b>Ingredientes:</b></p><ul><li>papa</li><li>huevo</li></ul>"+
				"<ol><li>Cortar</li><li>Hornear</li></ol>"+
				"<h5>Alternativas</h5><ul><li>batata en lugar de papa</li></ul>"+
				"<h5>Consejos</h5><ul><li><b>sodio:</b> Poca sal</li><li><b>higiene:</b> Lavar las manos</li></ul>",
			msg.HTML)
	})

	t.Run("should accept english aliases", func(t *testing.T) {
		msg := Normalize(mustParse(t, `{"dish":{"name":"Salad","method":"raw","drink":"tea",
			"proportions":{"vegFruit":0.6,"protein":0.2,"grain":0.2},"steps":["Mix"]},
			"advice":{"sugar":"none"}}`))

		assert.Contains(t, msg.HTML, "Salad")
		assert.Contains(t, msg.HTML, "raw")
		assert.Contains(t, msg.HTML, "tea")
		assert.Contains(t, msg.HTML, "verduras/frutas 0.6")
		assert.Contains(t, msg.HTML, "<ol><li>Mix</li></ol>")
		assert.Contains(t, msg.HTML, "<li><b>azucar:</b> none</li>")
	})

	t.Run("should escape dish text", func(t *testing.T) {
		msg := Normalize(mustParse(t, `{"dish":{
			"nombre":"<i>x</i>",
			"ingredientes_usados":["<script>alert('x')</script>"],
			"pasos":["a & b \"c\""]
		},"consejos":{"sodio":"<b>"}}`))

		assert.Contains(t, msg.HTML, "&lt;script&gt;alert(&#39;x&#39;)&lt;/script&gt;")
		assert.NotContains(t, msg.HTML, "<script>")
		assert.Contains(t, msg.HTML, "&lt;i&gt;x&lt;/i&gt;")
		assert.Contains(t, msg.HTML, "a &amp; b &quot;c&quot;")
		assert.Contains(t, msg.HTML, "<b>sodio:</b> &lt;b&gt;")
	})

	t.Run("should stringify non-string list items", func(t *testing.T) {
		msg := Normalize(mustParse(t, `{"dish":{"pasos":[1,true,null,{"a":"<"}]}}`))
		assert.Contains(t, msg.HTML, `<ol><li>1</li><li>true</li><li>null</li><li>{&quot;a&quot;:&quot;&lt;&quot;}</li></ol>`)
	})
}

func TestNormalizeDump(t *testing.T) {
	t.Run("should pretty print unknown shapes", func(t *testing.T) {
		msg := Normalize(mustParse(t, `{"status":"<ok>","items":[1,2]}`))
		assert.Equal(t, TierDump, msg.Tier)
		assert.Equal(t,
			"<pre>{\n  &quot;status&quot;: &quot;&lt;ok&gt;&quot;,\n  &quot;items&quot;: [\n    1,\n    2\n  ]\n}</pre>",
			msg.HTML)
	})

	t.Run("should dump scalars", func(t *testing.T) {
		assert.Equal(t, "<pre>42</pre>", Normalize(mustParse(t, `42`)).HTML)
		assert.Equal(t, "<pre>true</pre>", Normalize(mustParse(t, `true`)).HTML)
	})
}

func TestNormalizeBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"should render a json reply", `{"reply":"hola"}`, `<div class="reply-block">hola</div>`},
		{"should treat plain text as a reply", `Hola, probá una ensalada`, `<div class="reply-block">Hola, probá una ensalada</div>`},
		{"should treat an html error page as a reply", `<html>502</html>`, `<div class="reply-block"><html>502</html></div>`},
		{"should render empty bodies as no response", ``, NoResponse},
		{"should keep bodies with trailing garbage as text", `{"reply":"a"} extra`, `<div class="reply-block">{"reply":"a"} extra</div>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeBody([]byte(tt.body)).HTML)
		})
	}
}
