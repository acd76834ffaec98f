package loader

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is an Injector backed by a parsed HTML tree. Scripts are appended
// to <head> in injection order.
type Document struct {
	root *html.Node
	head *html.Node
}

// ParseDocument parses r into a Document.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	return NewDocument(root), nil
}

// NewDocument wraps an existing node tree.
func NewDocument(root *html.Node) *Document {
	return &Document{root: root, head: findHead(root)}
}

// Inject appends script to the document head.
func (d *Document) Inject(script Script) error {
	if d.head == nil {
		return ErrNoHead
	}
	d.head.AppendChild(script.node())
	return nil
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// Bytes renders the document into a byte slice.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return nil, fmt.Errorf("render HTML: %w", err)
	}
	return buf.Bytes(), nil
}

func findHead(node *html.Node) *html.Node {
	if node == nil {
		return nil
	}
	if node.Type == html.ElementNode && node.DataAtom == atom.Head {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if head := findHead(child); head != nil {
			return head
		}
	}
	return nil
}

// Fragment collects scripts and renders them as a standalone HTML fragment,
// for pages that embed the tags themselves.
type Fragment struct {
	scripts []Script
}

// Inject records script.
func (f *Fragment) Inject(script Script) error {
	f.scripts = append(f.scripts, script)
	return nil
}

// Scripts returns the collected scripts in injection order.
func (f *Fragment) Scripts() []Script {
	out := make([]Script, len(f.scripts))
	copy(out, f.scripts)
	return out
}

// Render writes each collected script element followed by a newline.
func (f *Fragment) Render(w io.Writer) error {
	for _, s := range f.scripts {
		if err := html.Render(w, s.node()); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}
