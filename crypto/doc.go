// Package crypto implements the session key vault for nexuschat.
//
// Every session generates a fresh RSA-OAEP key pair; the public half is
// exported as a base64 SPKI string and distributed through presence events,
// while the private half never leaves process memory and is never serialized.
// Keys are deliberately not persisted across restarts: trust is re-derived
// when a session re-announces itself.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	exported, _ := keys.ExportPublicKey()
//	pub, _ := crypto.ImportPublicKey(exported)
//	ciphertext, _ := crypto.Encrypt("hello", pub)
//	plaintext, _ := keys.Decrypt(ciphertext)
package crypto
