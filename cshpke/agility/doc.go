// Package agility binds a negotiated cipher suite to a concrete HPKE
// instantiation at runtime.
//
// The (KEM, KDF, AEAD) triple is only known after negotiation, so every
// entry point takes a suite.CipherSuite and returns interface values whose
// concrete type is chosen by that triple:
//   - GenerateKeyPair / ParsePublicKey for KEM key material
//   - SetupSender / SetupReceiver for a message-protecting HPKE context
//   - SetupPrimarySender / SetupPrimaryReceiver for a shared root secret
//
// All four RFC 9180 modes (Base, PSK, Auth, AuthPSK) are supported.
package agility
