// Package messaging implements the message pipeline: encrypting outgoing
// direct messages, decrypting inbound ones, fanning group messages out to
// member peer-links, and deduplicating and persisting everything that
// reaches the local session.
//
// The engine absorbs every recoverable failure at its boundary. A missing
// or malformed recipient key degrades to a plaintext send, a failed decrypt
// degrades to a display marker, and an unresolvable peer-link degrades to
// local-only persistence. The presentation layer only ever sees stored
// messages, never a crypto or routing error.
//
// Example:
//
//	engine := messaging.NewEngine(self, keys, dir, groups, coll, bus)
//	msg, err := engine.SendDirect("hello", "bob")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("encrypted:", msg.Encrypted)
package messaging
