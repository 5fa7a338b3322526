package render

import "strings"

// Proportions holds the plate fractions of each food group. A nil field
// means the upstream omitted it or sent something that is not a number.
type Proportions struct {
	VegFruit *float64
	Protein  *float64
	Grain    *float64
}

// Dish is a single suggested recipe
type Dish struct {
	ID                string
	Name              string
	Proportions       Proportions
	SuggestedPortions string
	IngredientsUsed   []string
	Method            string
	Drink             string
	Steps             []string
}

// Advice holds the free-text nutrition tips shown under a dish
type Advice struct {
	Sodium  string
	Sugar   string
	Hygiene string
}

// Suggestion is everything the dish renderer reads from a canonical object
type Suggestion struct {
	Dish         Dish
	Alternatives []string
	Advice       Advice
}

// field names as sent by the n8n workflow, followed by English aliases
var (
	dishKeys         = []string{"dish"}
	dishIDKeys       = []string{"id"}
	dishNameKeys     = []string{"nombre", "name"}
	dishMethodKeys   = []string{"metodo", "method"}
	dishDrinkKeys    = []string{"bebida", "drink"}
	dishPortionKeys  = []string{"porciones_sugeridas", "suggestedPortions"}
	dishIngredients  = []string{"ingredientes_usados", "ingredientsUsed"}
	dishStepKeys     = []string{"pasos", "steps"}
	proportionKeys   = []string{"proporciones", "proportions"}
	vegFruitKeys     = []string{"verduras_y_frutas", "vegFruit"}
	proteinKeys      = []string{"proteinas", "protein"}
	grainKeys        = []string{"cereales_tuberculos_legumbres", "grain"}
	alternativesKeys = []string{"alternativas_si_falta_algo", "alternatives"}
	adviceKeys       = []string{"consejos", "advice"}
	sodiumKeys       = []string{"sodio", "sodium"}
	sugarKeys        = []string{"azucar", "sugar"}
	hygieneKeys      = []string{"higiene", "hygiene"}
)

// dishObject finds the dish sub-object, preferring normalized.dish
func dishObject(o Value) (Value, bool) {
	if norm, ok := o.Get("normalized"); ok {
		if d, ok := norm.Lookup(dishKeys...); ok && d.Kind() == Object {
			return d, true
		}
	}
	if d, ok := o.Lookup(dishKeys...); ok && d.Kind() == Object {
		return d, true
	}
	return Value{}, false
}

// DecodeSuggestion extracts a Suggestion from a canonical object. It
// reports false when no dish object is present.
func DecodeSuggestion(o Value) (Suggestion, bool) {
	d, ok := dishObject(o)
	if !ok {
		return Suggestion{}, false
	}
	s := Suggestion{
		Dish: Dish{
			ID:                textField(d, dishIDKeys...),
			Name:              textField(d, dishNameKeys...),
			SuggestedPortions: textField(d, dishPortionKeys...),
			Method:            textField(d, dishMethodKeys...),
			Drink:             textField(d, dishDrinkKeys...),
			IngredientsUsed:   listField(d, dishIngredients...),
			Steps:             listField(d, dishStepKeys...),
		},
		Alternatives: listField(o, alternativesKeys...),
	}
	if p, ok := d.Lookup(proportionKeys...); ok {
		s.Dish.Proportions = Proportions{
			VegFruit: numberField(p, vegFruitKeys...),
			Protein:  numberField(p, proteinKeys...),
			Grain:    numberField(p, grainKeys...),
		}
	}
	if a, ok := o.Lookup(adviceKeys...); ok {
		s.Advice = Advice{
			Sodium:  strings.TrimSpace(stringField(a, sodiumKeys...)),
			Sugar:   strings.TrimSpace(stringField(a, sugarKeys...)),
			Hygiene: strings.TrimSpace(stringField(a, hygieneKeys...)),
		}
	}
	return s, true
}

// textField returns a scalar field as text; falsy values read as empty
func textField(o Value, keys ...string) string {
	v, ok := o.Lookup(keys...)
	if !ok || !v.Truthy() {
		return ""
	}
	switch v.Kind() {
	case String, Number, Bool:
		return v.Text()
	}
	return ""
}

// stringField returns a field only when it is a string
func stringField(o Value, keys ...string) string {
	v, ok := o.Lookup(keys...)
	if !ok {
		return ""
	}
	s, _ := v.Str()
	return s
}

func numberField(o Value, keys ...string) *float64 {
	v, ok := o.Lookup(keys...)
	if !ok {
		return nil
	}
	f, ok := v.Float()
	if !ok {
		return nil
	}
	return &f
}

// listField returns the items of an array field rendered as text
func listField(o Value, keys ...string) []string {
	v, ok := o.Lookup(keys...)
	if !ok {
		return nil
	}
	items := v.Items()
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Text())
	}
	return out
}
