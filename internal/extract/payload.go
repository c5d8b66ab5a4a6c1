// Package extract resolves raw extraction output into validated records.
package extract

// Kind discriminates the shapes an extraction payload can take.
type Kind int

const (
	KindNone Kind = iota
	KindObject
	KindText
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindText:
		return "text"
	case KindList:
		return "list"
	default:
		return "none"
	}
}

// Payload is the raw output of an extraction call. Only this package
// inspects its shape.
type Payload struct {
	kind   Kind
	object map[string]any
	text   string
	list   []any
}

// None is the empty payload.
func None() Payload { return Payload{} }

// Object wraps a single decoded mapping.
func Object(m map[string]any) Payload {
	if m == nil {
		return None()
	}
	return Payload{kind: KindObject, object: m}
}

// Text wraps a string that may encode structured data.
func Text(s string) Payload { return Payload{kind: KindText, text: s} }

// List wraps a decoded sequence.
func List(items []any) Payload {
	if items == nil {
		return None()
	}
	return Payload{kind: KindList, list: items}
}

// Kind reports the payload shape.
func (p Payload) Kind() Kind { return p.kind }

// excerpt is a short description of the payload for log lines.
func (p Payload) excerpt() string {
	switch p.kind {
	case KindText:
		return truncate(p.text, 200)
	case KindObject, KindList:
		return truncate(mustJSON(p.value()), 200)
	default:
		return ""
	}
}

func (p Payload) value() any {
	switch p.kind {
	case KindObject:
		return p.object
	case KindList:
		return p.list
	case KindText:
		return p.text
	default:
		return nil
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
