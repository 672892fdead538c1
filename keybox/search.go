package keybox

import "github.com/beevik/etree"

// First returns the first element named name within the subtree rooted at
// root, root itself included, in pre-order document order. Absence returns
// nil, it is a normal outcome callers check explicitly.
func First(root *etree.Element, name string) *etree.Element {
	return findElement(root, nil, name, "", "")
}

// FirstWithAttr is First restricted to elements carrying the attribute
// attrKey with exactly the value attrValue.
func FirstWithAttr(root *etree.Element, name, attrKey, attrValue string) *etree.Element {
	return findElement(root, nil, name, attrKey, attrValue)
}

// Finder enumerates every element matching a name and optional attribute
// constraint within one subtree, in document order. It is a cursor over the
// pre-order walk: each Next call resumes from just after the previous match
// instead of re-walking from the top, so repeated calls visit every match
// exactly once.
type Finder struct {
	root      *etree.Element
	name      string
	attrKey   string
	attrValue string
	last      *etree.Element
	done      bool
}

// NewFinder returns a Finder over the subtree rooted at root matching
// elements named name.
func NewFinder(root *etree.Element, name string) *Finder {
	return &Finder{root: root, name: name}
}

// NewAttrFinder returns a Finder that additionally requires the attribute
// attrKey to equal attrValue.
func NewAttrFinder(root *etree.Element, name, attrKey, attrValue string) *Finder {
	return &Finder{root: root, name: name, attrKey: attrKey, attrValue: attrValue}
}

// Next returns the next matching element in document order, or nil once the
// subtree is exhausted. A nil result is terminal.
func (f *Finder) Next() *etree.Element {
	if f.done {
		return nil
	}
	found := findElement(f.root, f.last, f.name, f.attrKey, f.attrValue)
	if found == nil {
		f.done = true
		return nil
	}
	f.last = found
	return found
}

// findElement locates the first matching element in pre-order document
// order. With a nil start the subtree rooted at root is searched from
// scratch, root itself eligible. With a non-nil start the same walk resumes
// from just after start: start's first child, else its next sibling, else
// the nearest ancestor's next sibling, never climbing past root.
func findElement(root, start *etree.Element, name, attrKey, attrValue string) *etree.Element {
	if root == nil {
		return nil
	}

	if start == nil {
		if matches(root, name, attrKey, attrValue) {
			return root
		}
		for _, child := range root.ChildElements() {
			if found := findElement(child, nil, name, attrKey, attrValue); found != nil {
				return found
			}
		}
		return nil
	}

	for el := walkNext(root, start); el != nil; el = walkNext(root, el) {
		if matches(el, name, attrKey, attrValue) {
			return el
		}
	}
	return nil
}

func matches(el *etree.Element, name, attrKey, attrValue string) bool {
	if el.Tag != name {
		return false
	}
	if attrKey == "" {
		return true
	}
	attr := el.SelectAttr(attrKey)
	return attr != nil && attr.Value == attrValue
}

// walkNext advances the pre-order walk bounded by root one step: first
// child, else next sibling, else the nearest ancestor's next sibling. The
// walk ends, returning nil, when it would have to climb past root.
func walkNext(root, el *etree.Element) *etree.Element {
	if child := firstChildElement(el); child != nil {
		return child
	}
	for el != nil && el != root {
		if sib := nextSiblingElement(el); sib != nil {
			return sib
		}
		el = el.Parent()
	}
	return nil
}

func firstChildElement(el *etree.Element) *etree.Element {
	for _, tok := range el.Child {
		if child, ok := tok.(*etree.Element); ok {
			return child
		}
	}
	return nil
}

func nextSiblingElement(el *etree.Element) *etree.Element {
	parent := el.Parent()
	if parent == nil {
		return nil
	}
	for i := el.Index() + 1; i < len(parent.Child); i++ {
		if sib, ok := parent.Child[i].(*etree.Element); ok {
			return sib
		}
	}
	return nil
}
