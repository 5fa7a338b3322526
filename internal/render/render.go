// Package render turns loosely-shaped recipe assistant responses into a
// single HTML fragment for the chat log.
package render

import (
	"strconv"
	"strings"
)

// Tier names the rendering arm that produced a Message
type Tier string

const (
	TierReply Tier = "reply"
	TierDish  Tier = "dish"
	TierDump  Tier = "dump"
	TierEmpty Tier = "empty"
)

// NoResponse is shown when nothing renderable was found
const NoResponse = "Sin respuesta"

// Display defaults for a dish with missing fields
const (
	DefaultDishName = "Plato sugerido"
	DefaultMethod   = "plancha"
	DefaultDrink    = "agua segura"
	DefaultVegFruit = "½"
	DefaultProtein  = "¼"
	DefaultGrain    = "¼"
)

// Message is a normalized chat message. HTML is never empty.
type Message struct {
	HTML string `json:"html"`
	Tier Tier   `json:"tier"`
}

// matcher renders a canonical object or declines it
type matcher func(o Value) (Message, bool)

// matchers are tried in priority order; the last one never declines
var matchers = []matcher{
	matchReply,
	matchDish,
	matchDump,
}

// Normalize renders any upstream value. It never panics and always
// returns a non-empty message.
func Normalize(v Value) (msg Message) {
	defer func() {
		if r := recover(); r != nil {
			msg = Message{HTML: NoResponse, Tier: TierEmpty}
		}
	}()
	o := Unwrap(v)
	for _, m := range matchers {
		if out, ok := m(o); ok && out.HTML != "" {
			return out
		}
	}
	return Message{HTML: NoResponse, Tier: TierEmpty}
}

// NormalizeBody parses an upstream body and renders it
func NormalizeBody(body []byte) Message {
	return Normalize(ParseBody(body))
}

func matchReply(o Value) (Message, bool) {
	reply, ok := o.Get("reply")
	if !ok {
		return Message{}, false
	}
	s, ok := reply.Str()
	if !ok || strings.TrimSpace(s) == "" {
		return Message{}, false
	}
	return Message{
		HTML: `<div class="reply-block">` + s + `</div>`,
		Tier: TierReply,
	}, true
}

func matchDish(o Value) (Message, bool) {
	s, ok := DecodeSuggestion(o)
	if !ok {
		return Message{}, false
	}
	return Message{HTML: RenderSuggestion(s), Tier: TierDish}, true
}

func matchDump(o Value) (Message, bool) {
	if o.Kind() == Object && o.Len() == 0 {
		return Message{}, false
	}
	pretty, err := o.Pretty()
	if err != nil {
		return Message{}, false
	}
	return Message{HTML: "<pre>" + EscapeHTML(pretty) + "</pre>", Tier: TierDump}, true
}

// RenderSuggestion renders a dish with its alternatives and advice
func RenderSuggestion(s Suggestion) string {
	d := s.Dish
	var b strings.Builder

	b.WriteString("<h4>🍽️ ")
	b.WriteString(EscapeHTML(orDefault(d.Name, DefaultDishName)))
	b.WriteString("</h4>")

	b.WriteString("<p><b>Método:</b> ")
	b.WriteString(EscapeHTML(orDefault(d.Method, DefaultMethod)))
	b.WriteString(" | <b>Bebida:</b> ")
	b.WriteString(EscapeHTML(orDefault(d.Drink, DefaultDrink)))
	b.WriteString("</p>")

	b.WriteString("<p><b>Proporciones:</b> verduras/frutas ")
	b.WriteString(fraction(d.Proportions.VegFruit, DefaultVegFruit))
	b.WriteString(", proteínas ")
	b.WriteString(fraction(d.Proportions.Protein, DefaultProtein))
	b.WriteString(", cereales/tubérculos ")
	b.WriteString(fraction(d.Proportions.Grain, DefaultGrain))
	b.WriteString("</p>")

	if len(d.IngredientsUsed) > 0 {
		b.WriteString("<p><b>Ingredientes:</b></p>")
		writeList(&b, "ul", d.IngredientsUsed)
	}
	writeList(&b, "ol", d.Steps)

	if len(s.Alternatives) > 0 {
		b.WriteString("<h5>Alternativas</h5>")
		writeList(&b, "ul", s.Alternatives)
	}

	tips := []struct {
		label string
		text  string
	}{
		{"sodio", s.Advice.Sodium},
		{"azucar", s.Advice.Sugar},
		{"higiene", s.Advice.Hygiene},
	}
	var advice strings.Builder
	for _, tip := range tips {
		if strings.TrimSpace(tip.text) == "" {
			continue
		}
		advice.WriteString("<li><b>")
		advice.WriteString(tip.label)
		advice.WriteString(":</b> ")
		advice.WriteString(EscapeHTML(tip.text))
		advice.WriteString("</li>")
	}
	if advice.Len() > 0 {
		b.WriteString("<h5>Consejos</h5><ul>")
		b.WriteString(advice.String())
		b.WriteString("</ul>")
	}

	return b.String()
}

// writeList writes an escaped <ul> or <ol>; empty lists write nothing
func writeList(b *strings.Builder, tag string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("<" + tag + ">")
	for _, item := range items {
		b.WriteString("<li>")
		b.WriteString(EscapeHTML(item))
		b.WriteString("</li>")
	}
	b.WriteString("</" + tag + ">")
}

func fraction(f *float64, def string) string {
	if f == nil {
		return def
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// orDefault replaces only missing or empty text; whitespace is kept as sent
func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
