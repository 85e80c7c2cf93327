// Package dom provides a live, mutable HTML document that reports tree
// mutations to observers. It stands in for the browser DOM: scanners query
// it with CSS selectors and react to inserted nodes.
package dom

import (
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Mutation describes one tree change. Added and Removed hold element roots
// only; descendants are reachable through Find.
type Mutation struct {
	Added   []*Element
	Removed []*Element
}

// ObserverFunc receives a batch of mutation records.
type ObserverFunc func([]Mutation)

// Page is a live document. All reads and writes are serialized through an
// RWMutex; observers run after the lock is released.
type Page struct {
	mu        sync.RWMutex
	doc       *goquery.Document
	offsets   map[*html.Node]float64
	observers map[int]ObserverFunc
	nextObs   int
	obsMu     sync.Mutex
}

// Parse builds a Page from an HTML document.
func Parse(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "dom: parse document")
	}
	return &Page{
		doc:       doc,
		offsets:   make(map[*html.Node]float64),
		observers: make(map[int]ObserverFunc),
	}, nil
}

// ParseString is Parse over an in-memory string.
func ParseString(s string) (*Page, error) {
	return Parse(strings.NewReader(s))
}

// Observe registers fn for subsequent mutation batches and returns a func
// that unregisters it.
func (p *Page) Observe(fn ObserverFunc) (unsubscribe func()) {
	p.obsMu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.obsMu.Unlock()

	return func() {
		p.obsMu.Lock()
		delete(p.observers, id)
		p.obsMu.Unlock()
	}
}

func (p *Page) notify(records []Mutation) {
	if len(records) == 0 {
		return
	}
	p.obsMu.Lock()
	fns := make([]ObserverFunc, 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	p.obsMu.Unlock()

	for _, fn := range fns {
		fn(records)
	}
}

// Body returns the <body> element.
func (p *Page) Body() *Element {
	p.mu.RLock()
	defer p.mu.RUnlock()
	nodes := p.doc.Find("body").Nodes
	if len(nodes) == 0 {
		return nil
	}
	return p.wrap(nodes[0])
}

// QueryAll returns every attached element matching selector in document
// order.
func (p *Page) QueryAll(selector string) []*Element {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.wrapAll(p.doc.Find(selector).Nodes)
}

// Append parses fragment in the context of parent, appends the resulting
// nodes as parent's last children, and notifies observers.
func (p *Page) Append(parent *Element, fragment string) ([]*Element, error) {
	p.mu.Lock()
	nodes, err := parseFragment(fragment, parent.node)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	for _, n := range nodes {
		parent.node.AppendChild(n)
	}
	added := p.wrapAll(elementNodes(nodes))
	p.mu.Unlock()

	p.notify([]Mutation{{Added: added}})
	return added, nil
}

// InsertAfter parses fragment in the context of ref's parent and inserts the
// nodes directly after ref.
func (p *Page) InsertAfter(ref *Element, fragment string) ([]*Element, error) {
	p.mu.Lock()
	parent := ref.node.Parent
	if parent == nil {
		p.mu.Unlock()
		return nil, eris.New("dom: insert after detached node")
	}
	nodes, err := parseFragment(fragment, parent)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	next := ref.node.NextSibling
	for _, n := range nodes {
		parent.InsertBefore(n, next)
	}
	added := p.wrapAll(elementNodes(nodes))
	p.mu.Unlock()

	p.notify([]Mutation{{Added: added}})
	return added, nil
}

// Remove detaches el from the tree. Detached elements keep their subtree so
// stale references can still be inspected, but Attached reports false and
// their recorded offsets are dropped.
func (p *Page) Remove(el *Element) {
	p.mu.Lock()
	if el.node.Parent == nil {
		p.mu.Unlock()
		return
	}
	el.node.Parent.RemoveChild(el.node)
	p.forgetOffsets(el.node)
	p.mu.Unlock()

	p.notify([]Mutation{{Removed: []*Element{el}}})
}

// SetOffsetTop records el's vertical viewport offset.
func (p *Page) SetOffsetTop(el *Element, y float64) {
	p.mu.Lock()
	p.offsets[el.node] = y
	p.mu.Unlock()
}

// Scroll shifts every recorded offset by -dy, as scrolling the viewport down
// by dy would.
func (p *Page) Scroll(dy float64) {
	p.mu.Lock()
	for n, y := range p.offsets {
		p.offsets[n] = y - dy
	}
	p.mu.Unlock()
}

// forgetOffsets deletes the offsets of n and its descendants. Callers hold
// p.mu.
func (p *Page) forgetOffsets(n *html.Node) {
	if len(p.offsets) == 0 {
		return
	}
	delete(p.offsets, n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.forgetOffsets(c)
	}
}

// HTML renders the current document.
func (p *Page) HTML() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var b strings.Builder
	if err := html.Render(&b, p.doc.Nodes[0]); err != nil {
		return "", eris.Wrap(err, "dom: render")
	}
	return b.String(), nil
}

func (p *Page) root() *html.Node {
	return p.doc.Nodes[0]
}

func (p *Page) wrap(n *html.Node) *Element {
	return &Element{page: p, node: n}
}

func (p *Page) wrapAll(nodes []*html.Node) []*Element {
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, p.wrap(n))
	}
	return out
}

func parseFragment(fragment string, context *html.Node) ([]*html.Node, error) {
	ctx := context
	if ctx == nil || ctx.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, eris.Wrap(err, "dom: parse fragment")
	}
	return nodes, nil
}

func elementNodes(nodes []*html.Node) []*html.Node {
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
	}
	return out
}
