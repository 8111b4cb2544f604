package wire

import (
	"fmt"
	"strconv"
)

// Attrs is the attribute set of a node. Keys are case-sensitive and unique
// per node.
type Attrs map[string]string

// Node is one element of the protocol's recursive binary tree. The content
// variant is fixed at construction; the only permitted mutation afterwards
// is appending attributes while assembling an outbound stanza.
type Node struct {
	Tag   string
	Attrs Attrs

	data     []byte
	text     string
	isText   bool
	children []*Node
}

// NewNode creates a node whose content is the given list of children. With
// no children the content is empty.
func NewNode(tag string, attrs Attrs, children ...*Node) *Node {
	return &Node{Tag: tag, Attrs: normalizeAttrs(attrs), children: children}
}

// NewDataNode creates a node carrying raw bytes.
func NewDataNode(tag string, attrs Attrs, data []byte) *Node {
	return &Node{Tag: tag, Attrs: normalizeAttrs(attrs), data: data}
}

// NewTextNode creates a node carrying UTF-8 text.
func NewTextNode(tag string, attrs Attrs, text string) *Node {
	return &Node{Tag: tag, Attrs: normalizeAttrs(attrs), text: text, isText: true}
}

func normalizeAttrs(attrs Attrs) Attrs {
	if attrs == nil {
		return make(Attrs)
	}
	return attrs
}

// SetAttr appends or replaces an attribute. This is the outbound-assembly
// escape hatch used by the ack and receipt builders for conditional fields.
func (n *Node) SetAttr(key, value string) {
	if n.Attrs == nil {
		n.Attrs = make(Attrs)
	}
	n.Attrs[key] = value
}

// Bytes returns the node's raw byte content, or nil if the content is not
// bytes.
func (n *Node) Bytes() []byte {
	return n.data
}

// Text returns the node's text content and whether the content variant is
// text.
func (n *Node) Text() (string, bool) {
	return n.text, n.isText
}

// Children returns all child nodes in order. The result is nil when the
// content is not a node list.
func (n *Node) Children() []*Node {
	return n.children
}

// GetChild returns the first child with the given tag, or nil if none
// exists.
func (n *Node) GetChild(tag string) *Node {
	for _, child := range n.children {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

// GetChildren returns every child with the given tag, in order.
func (n *Node) GetChildren(tag string) []*Node {
	var matched []*Node
	for _, child := range n.children {
		if child.Tag == tag {
			matched = append(matched, child)
		}
	}
	return matched
}

// HasChild reports whether a child with the given tag exists.
func (n *Node) HasChild(tag string) bool {
	return n.GetChild(tag) != nil
}

// ChildBytes returns the raw byte content of the first child with the given
// tag, or nil if the child is absent or carries no bytes.
func (n *Node) ChildBytes(tag string) []byte {
	child := n.GetChild(tag)
	if child == nil {
		return nil
	}
	return child.data
}

// ChildText returns the text content of the first child with the given tag.
// The bool result is false if the child is absent or its content is not
// text.
func (n *Node) ChildText(tag string) (string, bool) {
	child := n.GetChild(tag)
	if child == nil {
		return "", false
	}
	return child.Text()
}

// Attr returns the attribute value for key and whether it is present.
func (n *Node) Attr(key string) (string, bool) {
	value, ok := n.Attrs[key]
	return value, ok
}

// AttrOr returns the attribute value for key, or fallback when absent.
func (n *Node) AttrOr(key, fallback string) string {
	if value, ok := n.Attrs[key]; ok {
		return value
	}
	return fallback
}

// AttrString returns the attribute value for key, failing with a
// MalformedAttributeError when the attribute is missing. Handlers treat that
// failure as a protocol-version bug and abort the enclosing stanza only.
func (n *Node) AttrString(key string) (string, error) {
	value, ok := n.Attrs[key]
	if !ok {
		return "", &MalformedAttributeError{Tag: n.Tag, Key: key, Reason: "missing"}
	}
	return value, nil
}

// AttrUint64 parses the attribute value for key as an unsigned decimal.
func (n *Node) AttrUint64(key string) (uint64, error) {
	value, err := n.AttrString(key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, &MalformedAttributeError{Tag: n.Tag, Key: key, Value: value, Reason: "not an unsigned integer"}
	}
	return parsed, nil
}

// AttrUint32 parses the attribute value for key as an unsigned 32-bit
// decimal.
func (n *Node) AttrUint32(key string) (uint32, error) {
	value, err := n.AttrString(key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, &MalformedAttributeError{Tag: n.Tag, Key: key, Value: value, Reason: "not an unsigned 32-bit integer"}
	}
	return uint32(parsed), nil
}

// AttrInt64 parses the attribute value for key as a signed decimal.
func (n *Node) AttrInt64(key string) (int64, error) {
	value, err := n.AttrString(key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, &MalformedAttributeError{Tag: n.Tag, Key: key, Value: value, Reason: "not an integer"}
	}
	return parsed, nil
}

// String renders the node head for logging. Content is summarized, never
// dumped.
func (n *Node) String() string {
	switch {
	case n.isText:
		return fmt.Sprintf("<%s %v text(%d)>", n.Tag, n.Attrs, len(n.text))
	case n.data != nil:
		return fmt.Sprintf("<%s %v bytes(%d)>", n.Tag, n.Attrs, len(n.data))
	case len(n.children) > 0:
		return fmt.Sprintf("<%s %v children(%d)>", n.Tag, n.Attrs, len(n.children))
	default:
		return fmt.Sprintf("<%s %v>", n.Tag, n.Attrs)
	}
}
