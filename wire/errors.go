package wire

import "fmt"

// MalformedAttributeError reports a node missing an expected attribute or
// carrying one that cannot be parsed. It signals a programmer or
// protocol-version bug; the enclosing handler logs it and aborts that stanza
// only.
type MalformedAttributeError struct {
	Tag    string
	Key    string
	Value  string
	Reason string
}

func (e *MalformedAttributeError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("malformed attribute %q on <%s>: %s", e.Key, e.Tag, e.Reason)
	}
	return fmt.Sprintf("malformed attribute %q=%q on <%s>: %s", e.Key, e.Value, e.Tag, e.Reason)
}
