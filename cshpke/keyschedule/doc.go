// Package keyschedule derives the session key hierarchy that sits on top
// of a primary HPKE pairing.
//
//	root     shared by primary client and primary server
//	pair     = ConcatKDF(root, pair id)
//	role     = ConcatKDF(pair, participant id)
//	binder   = ConcatKDF(key refresh input, five-tuple)
//	session  = ConcatKDF(binder, role)
//
// The session key is used as the pre-shared key of the AuthPSK exchange
// between a secondary client and a secondary server. All steps use the
// single-step concatenation KDF over SHA-256.
package keyschedule
