// Package nexuschat implements the peer directory and encrypted message
// synchronization engine behind the nexuschat client.
//
// A Session owns the per-session key pair, the relay connection, the peer
// directory built by the presence protocol, and the offline-capable local
// history of messages and groups. The visual client, settings panel, and
// call overlay are collaborators that call into the Session and render
// whatever state it produces; none of that presentation lives here.
//
// Example:
//
//	opts := nexuschat.NewOptions()
//	opts.DisplayName = "Alice"
//	opts.RelayURL = "wss://relay.example.com"
//
//	session, err := nexuschat.New(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Disconnect()
//
//	session.SendDirect("hello", "bob")
//	for _, m := range session.Messages() {
//	    fmt.Println(m.SenderID, m.DisplayText())
//	}
package nexuschat
