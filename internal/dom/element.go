package dom

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Element is a handle to one element node of a Page. Handles stay valid
// after the node is removed; Attached reports whether it is still in the
// document.
type Element struct {
	page *Page
	node *html.Node
}

func (e *Element) sel() *goquery.Selection {
	return goquery.NewDocumentFromNode(e.node).Selection
}

// NodeKey identifies the node behind an Element. Handles for the same node
// have equal keys.
type NodeKey struct{ n *html.Node }

// Key returns e's node identity, usable as a map key.
func (e *Element) Key() NodeKey {
	return NodeKey{e.node}
}

// Same reports whether e and other refer to the same node.
func (e *Element) Same(other *Element) bool {
	return other != nil && e.node == other.node
}

// Tag returns the element's tag name.
func (e *Element) Tag() string {
	return e.node.Data
}

// Find returns descendants of e matching selector in document order.
func (e *Element) Find(selector string) []*Element {
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	return e.page.wrapAll(e.sel().Find(selector).Nodes)
}

// First returns the first descendant matching selector, or nil.
func (e *Element) First(selector string) *Element {
	found := e.Find(selector)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// Matches reports whether e itself matches selector.
func (e *Element) Matches(selector string) bool {
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	return e.sel().Is(selector)
}

// Text returns the concatenated text content of e and its descendants.
func (e *Element) Text() string {
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	return e.sel().Text()
}

// Attr returns the value of attribute name.
func (e *Element) Attr(name string) (string, bool) {
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets attribute name to value, replacing any existing value.
// Attribute changes are not reported to observers.
func (e *Element) SetAttr(name, value string) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

// Attached reports whether e is still part of the document tree.
func (e *Element) Attached() bool {
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	root := e.page.root()
	for n := e.node; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// OffsetTop returns the element's recorded viewport offset, or 0 when none
// has been set.
func (e *Element) OffsetTop() float64 {
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	return e.page.offsets[e.node]
}

// OuterHTML renders e and its subtree.
func (e *Element) OuterHTML() string {
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	s, err := goquery.OuterHtml(e.sel())
	if err != nil {
		return ""
	}
	return s
}
