package uds

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// element is a generic ODX XML node. encoding/xml has no built-in
// "decode anything" node type, so this is the standard recursive-struct
// idiom for walking an arbitrary document: every element keeps its
// attributes, text and children, and callers navigate it the way ODX
// documents are described (Find/FindAll by tag, Attr by name).
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	CharData string     `xml:",chardata"`
	Children []*element `xml:",any"`
}

// Attr returns the value of an attribute by local name (namespace prefix
// ignored — ODX fixtures in this repo declare xsi without always resolving
// it through a registered namespace, so matching on the local name alone
// is the pragmatic, source-compatible choice).
func (e *element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Find returns the first direct child with the given tag name, or nil.
func (e *element) Find(tag string) *element {
	for _, c := range e.Children {
		if c.XMLName.Local == tag {
			return c
		}
	}
	return nil
}

// FindAll returns every direct child with the given tag name.
func (e *element) FindAll(tag string) []*element {
	var out []*element
	for _, c := range e.Children {
		if c.XMLName.Local == tag {
			out = append(out, c)
		}
	}
	return out
}

// Text returns the element's trimmed character data.
func (e *element) Text() string {
	return strings.TrimSpace(e.CharData)
}

// iter walks e and all of its descendants, e included, depth first.
func (e *element) iter(visit func(*element)) {
	visit(e)
	for _, c := range e.Children {
		c.iter(visit)
	}
}

// findDescendant returns the first descendant (any depth, e excluded) with
// the given tag. Grounded on original_source's findDescendant, used when
// ODX STRUCTURE nests a DOP-REF rather than declaring BYTE-SIZE directly.
func (e *element) findDescendant(tag string) *element {
	var found *element
	for _, c := range e.Children {
		if found != nil {
			break
		}
		c.iter(func(n *element) {
			if found == nil && n.XMLName.Local == tag {
				found = n
			}
		})
	}
	return found
}

// buildXmlElementsIndex performs the single traversal spec.md §4.5 step 1
// requires: every element with an ID attribute becomes addressable by that
// ID, resolving ODX's ID-REF links.
func buildXmlElementsIndex(root *element) map[string]*element {
	index := make(map[string]*element)
	root.iter(func(e *element) {
		if id, ok := e.Attr("ID"); ok {
			index[id] = e
		}
	})
	return index
}

// parseCodedInt parses an ODX CODED-VALUE text node. ODX stores these in
// decimal, but base 0 also tolerates a "0x" prefix some hand-edited fixtures use.
func parseCodedInt(text string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(text), 0, 64)
}

// idRef resolves an <X ID-REF="..."/> style reference through the index.
func idRef(e *element, index map[string]*element) (*element, bool) {
	ref, ok := e.Attr("ID-REF")
	if !ok {
		return nil, false
	}
	target, ok := index[ref]
	return target, ok
}
