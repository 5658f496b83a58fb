package xposh

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// node is a minimal DOM element: enough structure to answer the
// "descendants by tag, in document order" and "grandparent tag" questions
// the loader asks.
type node struct {
	name     string
	attrs    map[string]string
	parent   *node
	children []*node
}

// parseDocument reads a whole XML document into a node tree and returns
// its root element.
func parseDocument(r io.Reader) (*node, error) {
	decoder := xml.NewDecoder(r)
	var root, current *node

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr)), parent: current}
			for _, a := range t.Attr {
				n.attrs[a.Name.Local] = a.Value
			}
			if current == nil {
				if root != nil {
					return nil, fmt.Errorf("multiple root elements (%s after %s)", n.name, root.name)
				}
				root = n
			} else {
				current.children = append(current.children, n)
			}
			current = n
		case xml.EndElement:
			if current == nil {
				return nil, fmt.Errorf("unexpected end element %s", t.Name.Local)
			}
			current = current.parent
		}
	}

	if root == nil {
		return nil, errors.New("document has no root element")
	}
	if current != nil {
		return nil, fmt.Errorf("unclosed element %s", current.name)
	}
	return root, nil
}

func (n *node) attr(key string) string {
	return n.attrs[key]
}

// trimmedAttr returns the attribute with surrounding whitespace removed.
func (n *node) trimmedAttr(key string) string {
	return strings.TrimSpace(n.attrs[key])
}

// descendants returns every element below n named tag, in document order.
func (n *node) descendants(tag string) []*node {
	var out []*node
	var walk func(*node)
	walk = func(p *node) {
		for _, c := range p.children {
			if c.name == tag {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// child returns the first direct child named tag.
func (n *node) child(tag string) *node {
	for _, c := range n.children {
		if c.name == tag {
			return c
		}
	}
	return nil
}

// block returns the direct child named tag, falling back to the first
// descendant of that name.
func (n *node) block(tag string) *node {
	if c := n.child(tag); c != nil {
		return c
	}
	if d := n.descendants(tag); len(d) > 0 {
		return d[0]
	}
	return nil
}

// grandparentName returns the tag of n's grandparent, or "".
func (n *node) grandparentName() string {
	if n.parent == nil || n.parent.parent == nil {
		return ""
	}
	return n.parent.parent.name
}
