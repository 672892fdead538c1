package keybox

import (
	"fmt"

	"github.com/attestify/keybox-provisioner/interfaces"
	"github.com/beevik/etree"
)

// Element and attribute names of the keybox document schema.
const (
	ElementKey         = "Key"
	ElementPrivateKey  = "PrivateKey"
	ElementCertificate = "Certificate"
	AttrAlgorithm      = "algorithm"
)

// Keybox is a parsed keybox document. It lives for the duration of one
// provisioning pass; credential bytes are extracted from it and handed to
// storage, never retained.
type Keybox struct {
	doc  *etree.Document
	root *etree.Element
}

// Parse parses decoded XML bytes into a Keybox. Malformed XML and documents
// without a root element fail with ErrParse.
func Parse(xmlBytes []byte) (*Keybox, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrParse, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: document has no root element", interfaces.ErrParse)
	}
	return &Keybox{doc: doc, root: root}, nil
}

// Root returns the document's root element.
func (kb *Keybox) Root() *etree.Element {
	return kb.root
}

// KeyElement returns the Key element whose algorithm attribute matches
// slot. Slots that never appear in keyboxes fail with
// ErrUnsupportedAlgorithm; an absent element fails with ErrLookup.
func (kb *Keybox) KeyElement(slot interfaces.KeySlot) (*etree.Element, error) {
	attr := slot.AlgorithmAttr()
	if attr == "" {
		return nil, fmt.Errorf("%w: slot %s does not appear in keybox documents", interfaces.ErrUnsupportedAlgorithm, slot)
	}

	el := FirstWithAttr(kb.root, ElementKey, AttrAlgorithm, attr)
	if el == nil {
		return nil, fmt.Errorf("%w: %s element with %s=%q", interfaces.ErrLookup, ElementKey, AttrAlgorithm, attr)
	}
	return el, nil
}

// PrivateKey extracts the decoded private key bytes for slot.
func (kb *Keybox) PrivateKey(slot interfaces.KeySlot) ([]byte, error) {
	keyEl, err := kb.KeyElement(slot)
	if err != nil {
		return nil, err
	}
	return PrivateKey(keyEl, slot)
}

// Certificates returns a Finder enumerating every Certificate element under
// slot's Key element in document order.
func (kb *Keybox) Certificates(slot interfaces.KeySlot) (*Finder, error) {
	keyEl, err := kb.KeyElement(slot)
	if err != nil {
		return nil, err
	}
	return NewFinder(keyEl, ElementCertificate), nil
}

// CertificateCount reports how many Certificate elements slot's Key element
// holds.
func (kb *Keybox) CertificateCount(slot interfaces.KeySlot) (int, error) {
	finder, err := kb.Certificates(slot)
	if err != nil {
		return 0, err
	}

	count := 0
	for el := finder.Next(); el != nil; el = finder.Next() {
		count++
	}
	return count, nil
}

// PrivateKey extracts the decoded private key bytes for slot from the
// PrivateKey element under keyElement.
func PrivateKey(keyElement *etree.Element, slot interfaces.KeySlot) ([]byte, error) {
	begin, end, err := privateKeyMarkers(slot)
	if err != nil {
		return nil, err
	}

	el := First(keyElement, ElementPrivateKey)
	if el == nil {
		return nil, fmt.Errorf("%w: %s element under %s[%s=%q]",
			interfaces.ErrLookup, ElementPrivateKey, ElementKey, AttrAlgorithm, slot.AlgorithmAttr())
	}
	return ExtractPEM(el.Text(), begin, end)
}

// Certificate extracts the decoded certificate bytes from certElement.
func Certificate(certElement *etree.Element) ([]byte, error) {
	return ExtractPEM(certElement.Text(), BeginCertificate, EndCertificate)
}
