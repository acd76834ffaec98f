package loader

import (
	"errors"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrNoHead is returned when a document has no <head> to insert into.
	ErrNoHead = errors.New("document has no head element")
	// ErrDocumentLoading is returned when injection is attempted before the
	// document structure is parsed.
	ErrDocumentLoading = errors.New("document is still loading")
)

// Attr is a single script attribute. Order is preserved when rendering.
type Attr struct {
	Key   string
	Value string
}

// Script describes one script element to insert.
type Script struct {
	Src    string
	Async  bool
	Defer  bool
	Attrs  []Attr
	Inline string
}

// Injector inserts script resources into a document.
type Injector interface {
	Inject(script Script) error
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(Script) error

// Inject calls f(script).
func (f InjectorFunc) Inject(script Script) error {
	return f(script)
}

func (s Script) node() *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
	}
	if s.Async {
		n.Attr = append(n.Attr, html.Attribute{Key: "async"})
	}
	if s.Defer {
		n.Attr = append(n.Attr, html.Attribute{Key: "defer"})
	}
	for _, a := range s.Attrs {
		n.Attr = append(n.Attr, html.Attribute{Key: a.Key, Val: a.Value})
	}
	if s.Src != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "src", Val: s.Src})
	}
	if s.Inline != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: s.Inline})
	}
	return n
}
