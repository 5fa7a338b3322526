package render

// maxUnwrapDepth bounds the number of wrapper layers stripped. n8n item
// envelopes are the deepest observed shape: [{"json": {"output": {...}}}].
const maxUnwrapDepth = 3

// wrapperKeys are the conventional envelope keys, checked in this order
var wrapperKeys = []string{"json", "output"}

// Unwrap strips conventional wrapper layers from an upstream response and
// returns the canonical object the renderers match against. A bare string
// becomes {"reply": s}; null, false, 0, "" and empty arrays become an empty
// object. Unwrap(Unwrap(v)) equals Unwrap(v) for every value with at most
// maxUnwrapDepth wrapper layers.
func Unwrap(v Value) Value {
	for depth := 0; ; depth++ {
		if !v.Truthy() {
			return ObjectValue()
		}
		switch v.Kind() {
		case String:
			return ObjectValue(Member{Key: "reply", Value: v})
		case Array:
			if depth == maxUnwrapDepth {
				return v
			}
			items := v.Items()
			if len(items) == 0 {
				return ObjectValue()
			}
			v = items[0]
			continue
		case Object:
			if depth == maxUnwrapDepth {
				return v
			}
			inner, ok := envelope(v)
			if !ok {
				return v
			}
			v = inner
			continue
		}
		return v
	}
}

func envelope(v Value) (Value, bool) {
	for _, key := range wrapperKeys {
		if inner, ok := v.Get(key); ok && inner.Truthy() {
			return inner, true
		}
	}
	return Value{}, false
}
