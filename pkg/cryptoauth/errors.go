package cryptoauth

import "errors"

// Crypto layer errors.
var (
	ErrNoPeerKey      = errors.New("cryptoauth: peer public key unknown, cannot start handshake")
	ErrBadPeerKey     = errors.New("cryptoauth: peer public key derives no valid overlay address")
	ErrLoopbackKey    = errors.New("cryptoauth: peer public key is our own")
	ErrNonceExhausted = errors.New("cryptoauth: outbound nonce space exhausted")
)
