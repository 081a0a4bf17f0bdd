package agility

import (
	"crypto/rand"
	"io"

	"github.com/cloudflare/circl/hpke"
	"github.com/cloudflare/circl/kem"
	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/psk"
	"github.com/TheusHen/cshpke/cshpke/suite"
)

// rootSecretLabel is the exporter context under which primary setups
// derive the shared root secret.
var rootSecretLabel = []byte("cshpke root secret")

// SetupSender encapsulates to peer and returns the encapsulated key to send
// along with a context that seals messages for the peer.
func SetupSender(cs suite.CipherSuite, mode SenderMode, peer PublicKey, info []byte, rnd io.Reader) (EncappedKey, SenderContext, error) {
	if err := cs.Validate(); err != nil {
		return EncappedKey{}, nil, err
	}
	if peer.KEM != cs.KEM {
		return EncappedKey{}, nil, errors.Wrapf(ErrSuiteMismatch, "peer key is %s, suite uses %s", peer.KEM, cs.KEM)
	}
	pkR, err := peer.unmarshal()
	if err != nil {
		return EncappedKey{}, nil, err
	}
	sender, err := cs.HPKE().NewSender(pkR, info)
	if err != nil {
		return EncappedKey{}, nil, errors.Wrap(err, "agility: new sender")
	}
	if rnd == nil {
		rnd = rand.Reader
	}

	var (
		enc    []byte
		sealer hpke.Sealer
	)
	switch mode.Kind {
	case ModeBase:
		enc, sealer, err = sender.Setup(rnd)
	case ModePSK:
		if err := checkPSK(cs, mode.PSK); err != nil {
			return EncappedKey{}, nil, err
		}
		enc, sealer, err = sender.SetupPSK(rnd, mode.PSK.PSK, mode.PSK.ID)
	case ModeAuth:
		skS, kerr := senderKey(cs, mode.SenderKey)
		if kerr != nil {
			return EncappedKey{}, nil, kerr
		}
		enc, sealer, err = sender.SetupAuth(rnd, skS)
	case ModeAuthPSK:
		skS, kerr := senderKey(cs, mode.SenderKey)
		if kerr != nil {
			return EncappedKey{}, nil, kerr
		}
		if err := checkPSK(cs, mode.PSK); err != nil {
			return EncappedKey{}, nil, err
		}
		enc, sealer, err = sender.SetupAuthPSK(rnd, skS, mode.PSK.PSK, mode.PSK.ID)
	default:
		return EncappedKey{}, nil, errors.Errorf("agility: unknown mode %d", uint8(mode.Kind))
	}
	if err != nil {
		return EncappedKey{}, nil, errors.Wrapf(err, "agility: %s sender setup", mode.Kind)
	}
	return EncappedKey{KEM: cs.KEM, Bytes: enc}, &sealContext{suite: cs, inner: sealer}, nil
}

// SetupReceiver decapsulates enc with kp and returns a context that opens
// the sender's messages.
func SetupReceiver(cs suite.CipherSuite, mode ReceiverMode, kp KeyPair, enc EncappedKey, info []byte) (ReceiverContext, error) {
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	if kp.Public.KEM != cs.KEM || enc.KEM != cs.KEM {
		return nil, errors.Wrapf(ErrSuiteMismatch, "key pair %s, encapsulation %s, suite %s", kp.Public.KEM, enc.KEM, cs.KEM)
	}
	if kp.sk == nil {
		return nil, errors.Wrap(ErrModeMaterial, "receiver key pair has no private key")
	}
	if err := enc.check(); err != nil {
		return nil, err
	}
	receiver, err := cs.HPKE().NewReceiver(kp.sk, info)
	if err != nil {
		return nil, errors.Wrap(err, "agility: new receiver")
	}

	var opener hpke.Opener
	switch mode.Kind {
	case ModeBase:
		opener, err = receiver.Setup(enc.Bytes)
	case ModePSK:
		if err := checkPSK(cs, mode.PSK); err != nil {
			return nil, err
		}
		opener, err = receiver.SetupPSK(enc.Bytes, mode.PSK.PSK, mode.PSK.ID)
	case ModeAuth:
		pkS, kerr := senderPublic(cs, mode.SenderPublic)
		if kerr != nil {
			return nil, kerr
		}
		opener, err = receiver.SetupAuth(enc.Bytes, pkS)
	case ModeAuthPSK:
		pkS, kerr := senderPublic(cs, mode.SenderPublic)
		if kerr != nil {
			return nil, kerr
		}
		if err := checkPSK(cs, mode.PSK); err != nil {
			return nil, err
		}
		opener, err = receiver.SetupAuthPSK(enc.Bytes, mode.PSK.PSK, mode.PSK.ID, pkS)
	default:
		return nil, errors.Errorf("agility: unknown mode %d", uint8(mode.Kind))
	}
	if err != nil {
		return nil, errors.Wrapf(ErrKeyDeserialization, "%s receiver setup: %v", mode.Kind, err)
	}
	return &openContext{suite: cs, inner: opener}, nil
}

// SetupPrimarySender runs a sender setup whose only product is a root
// secret of the KDF's native length, shared with the matching receiver.
func SetupPrimarySender(cs suite.CipherSuite, mode SenderMode, peer PublicKey, info []byte, rnd io.Reader) (EncappedKey, []byte, error) {
	enc, ctx, err := SetupSender(cs, mode, peer, info, rnd)
	if err != nil {
		return EncappedKey{}, nil, err
	}
	return enc, ctx.Export(rootSecretLabel, cs.KDF.OutputLen()), nil
}

// SetupPrimaryReceiver is the receiving half of SetupPrimarySender.
func SetupPrimaryReceiver(cs suite.CipherSuite, mode ReceiverMode, kp KeyPair, enc EncappedKey, info []byte) ([]byte, error) {
	ctx, err := SetupReceiver(cs, mode, kp, enc, info)
	if err != nil {
		return nil, err
	}
	return ctx.Export(rootSecretLabel, cs.KDF.OutputLen()), nil
}

func checkPSK(cs suite.CipherSuite, b psk.Bundle) error {
	if len(b.PSK) == 0 {
		return errors.Wrap(ErrModeMaterial, "pre-shared key")
	}
	return b.Check(cs.KDF)
}

func senderKey(cs suite.CipherSuite, kp *KeyPair) (kem.PrivateKey, error) {
	if kp == nil || kp.sk == nil {
		return nil, errors.Wrap(ErrModeMaterial, "sender key pair")
	}
	if kp.Public.KEM != cs.KEM {
		return nil, errors.Wrapf(ErrSuiteMismatch, "sender key is %s, suite uses %s", kp.Public.KEM, cs.KEM)
	}
	return kp.sk, nil
}

func senderPublic(cs suite.CipherSuite, pk *PublicKey) (kem.PublicKey, error) {
	if pk == nil {
		return nil, errors.Wrap(ErrModeMaterial, "sender public key")
	}
	if pk.KEM != cs.KEM {
		return nil, errors.Wrapf(ErrSuiteMismatch, "sender key is %s, suite uses %s", pk.KEM, cs.KEM)
	}
	return pk.unmarshal()
}
