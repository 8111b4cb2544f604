// Package message defines the domain model for chat messages: the message
// key that identifies a message for retrieval and retry, the tagged content
// union over the finite set of message content kinds, delivery status, and
// the stub classification used for non-text events carried inside a message
// envelope.
//
// The content union replaces runtime type inspection with an explicit
// active-variant query:
//
//	switch content.Kind() {
//	case message.KindText:
//	    fmt.Println(content.Text.Body)
//	case message.KindImage:
//	    // fetch via the media downloader
//	}
package message
