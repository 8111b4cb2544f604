// Package wire implements the recursive binary node model of the chat
// protocol's wire format.
//
// A node is an immutable-once-built tree: a tag, a set of string attributes
// and content that is exactly one of raw bytes, UTF-8 text, an ordered list
// of child nodes, or empty. Nodes are the unit exchanged with the transport
// in both directions; every stanza the engine dispatches is a node.
//
// Example:
//
//	ack := wire.NewNode("ack", wire.Attrs{
//	    "id":    "3EB0A6F2",
//	    "to":    "15551234567@s.whatsapp.net",
//	    "class": "message",
//	})
//
//	id, err := ack.AttrString("id")
//	if err != nil {
//	    log.Fatal(err)
//	}
package wire
