package cryptoauth

// State is the handshake progress of a session. States are ordered:
// a session can carry user traffic once it reaches StateReceivedKey.
type State int

// Handshake states.
const (
	// StateInit means no handshake traffic has been exchanged.
	StateInit State = iota

	// StateSentHello means we sent a hello and await the key packet.
	StateSentHello

	// StateReceivedHello means the peer's hello arrived and we hold
	// their ephemeral key but have not answered yet.
	StateReceivedHello

	// StateSentKey means we answered a hello with our key packet and
	// await the first data packet.
	StateSentKey

	// StateReceivedKey means the key packet arrived; both ephemeral
	// keys are known and data traffic can flow.
	StateReceivedKey

	// StateEstablished means at least one data packet authenticated,
	// proving the peer holds the shared secret.
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSentHello:
		return "SENT_HELLO"
	case StateReceivedHello:
		return "RECEIVED_HELLO"
	case StateSentKey:
		return "SENT_KEY"
	case StateReceivedKey:
		return "RECEIVED_KEY"
	case StateEstablished:
		return "ESTABLISHED"
	default:
		return "UNKNOWN"
	}
}

// DecryptErr classifies a decryption failure. The numeric value is
// carried in failed-decrypt error replies.
type DecryptErr uint32

// Decryption failure codes.
const (
	DecryptErrNone DecryptErr = iota
	DecryptErrRunt
	DecryptErrNoSession
	DecryptErrFailedDecryptDataMsg
	DecryptErrMalformedHandshake
	DecryptErrHandshakeDecryptFailed
	DecryptErrWrongPermKey
	DecryptErrReplay
	DecryptErrWiseguy
)

func (e DecryptErr) String() string {
	switch e {
	case DecryptErrNone:
		return "NONE"
	case DecryptErrRunt:
		return "RUNT"
	case DecryptErrNoSession:
		return "NO_SESSION"
	case DecryptErrFailedDecryptDataMsg:
		return "FAILED_DECRYPT_DATA_MSG"
	case DecryptErrMalformedHandshake:
		return "MALFORMED_HANDSHAKE"
	case DecryptErrHandshakeDecryptFailed:
		return "HANDSHAKE_DECRYPT_FAILED"
	case DecryptErrWrongPermKey:
		return "WRONG_PERM_KEY"
	case DecryptErrReplay:
		return "REPLAY"
	case DecryptErrWiseguy:
		return "WISEGUY"
	default:
		return "UNKNOWN"
	}
}
