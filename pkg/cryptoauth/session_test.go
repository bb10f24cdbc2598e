package cryptoauth

import (
	"bytes"
	"testing"

	"github.com/backwardn/cjdns/pkg/addr"
)

func newTestPair(t *testing.T) (*CryptoAuth, *CryptoAuth) {
	t.Helper()
	privA, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	privB, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	caA, err := New(Config{PrivateKey: privA})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	caB, err := New(Config{PrivateKey: privB})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return caA, caB
}

func TestHandshakeAndData(t *testing.T) {
	caA, caB := newTestPair(t)

	alice, err := caA.NewSession(caB.PublicKey(), "alice")
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	// Bob learns Alice's key from her hello.
	bob, err := caB.NewSession(addr.Key{}, "bob")
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	hello, err := alice.Encrypt([]byte("hello payload"))
	if err != nil {
		t.Fatalf("Encrypt(hello) error = %v", err)
	}
	if alice.State() != StateSentHello {
		t.Errorf("alice state = %s, want SENT_HELLO", alice.State())
	}

	plain, derr := bob.Decrypt(hello)
	if derr != DecryptErrNone {
		t.Fatalf("Decrypt(hello) = %s", derr)
	}
	if !bytes.Equal(plain, []byte("hello payload")) {
		t.Errorf("hello payload = %q", plain)
	}
	if bob.State() != StateReceivedHello {
		t.Errorf("bob state = %s, want RECEIVED_HELLO", bob.State())
	}
	if bob.HerPublicKey() != caA.PublicKey() {
		t.Error("bob did not learn alice's permanent key")
	}
	if bob.HerIP6() != caA.IP6() {
		t.Error("bob did not derive alice's address")
	}

	key, err := bob.Encrypt([]byte("key payload"))
	if err != nil {
		t.Fatalf("Encrypt(key) error = %v", err)
	}
	if bob.State() != StateSentKey {
		t.Errorf("bob state = %s, want SENT_KEY", bob.State())
	}

	plain, derr = alice.Decrypt(key)
	if derr != DecryptErrNone {
		t.Fatalf("Decrypt(key) = %s", derr)
	}
	if !bytes.Equal(plain, []byte("key payload")) {
		t.Errorf("key payload = %q", plain)
	}
	if alice.State() != StateReceivedKey {
		t.Errorf("alice state = %s, want RECEIVED_KEY", alice.State())
	}

	data, err := alice.Encrypt([]byte("first data"))
	if err != nil {
		t.Fatalf("Encrypt(data) error = %v", err)
	}
	plain, derr = bob.Decrypt(data)
	if derr != DecryptErrNone {
		t.Fatalf("Decrypt(data) = %s", derr)
	}
	if !bytes.Equal(plain, []byte("first data")) {
		t.Errorf("data payload = %q", plain)
	}
	if bob.State() != StateEstablished {
		t.Errorf("bob state = %s, want ESTABLISHED", bob.State())
	}

	back, err := bob.Encrypt([]byte("reply"))
	if err != nil {
		t.Fatalf("Encrypt(reply) error = %v", err)
	}
	plain, derr = alice.Decrypt(back)
	if derr != DecryptErrNone {
		t.Fatalf("Decrypt(reply) = %s", derr)
	}
	if !bytes.Equal(plain, []byte("reply")) {
		t.Errorf("reply payload = %q", plain)
	}
	if alice.State() != StateEstablished {
		t.Errorf("alice state = %s, want ESTABLISHED", alice.State())
	}
}

func establishedPair(t *testing.T) (*Session, *Session) {
	t.Helper()
	caA, caB := newTestPair(t)
	alice, _ := caA.NewSession(caB.PublicKey(), "alice")
	bob, _ := caB.NewSession(addr.Key{}, "bob")

	hello, _ := alice.Encrypt(nil)
	if _, derr := bob.Decrypt(hello); derr != DecryptErrNone {
		t.Fatalf("hello: %s", derr)
	}
	key, _ := bob.Encrypt(nil)
	if _, derr := alice.Decrypt(key); derr != DecryptErrNone {
		t.Fatalf("key: %s", derr)
	}
	data, _ := alice.Encrypt(nil)
	if _, derr := bob.Decrypt(data); derr != DecryptErrNone {
		t.Fatalf("data: %s", derr)
	}
	return alice, bob
}

func TestDecrypt_Replay(t *testing.T) {
	alice, bob := establishedPair(t)

	pkt, err := alice.Encrypt([]byte("once"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, derr := bob.Decrypt(pkt); derr != DecryptErrNone {
		t.Fatalf("first Decrypt() = %s", derr)
	}
	if _, derr := bob.Decrypt(pkt); derr != DecryptErrReplay {
		t.Errorf("replayed Decrypt() = %s, want REPLAY", derr)
	}
	if s := bob.Stats(); s.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", s.Duplicates)
	}
}

func TestDecrypt_Tampered(t *testing.T) {
	alice, bob := establishedPair(t)

	pkt, _ := alice.Encrypt([]byte("payload"))
	pkt[len(pkt)-1] ^= 0xFF
	if _, derr := bob.Decrypt(pkt); derr != DecryptErrFailedDecryptDataMsg {
		t.Errorf("Decrypt(tampered) = %s, want FAILED_DECRYPT_DATA_MSG", derr)
	}
}

func TestDecrypt_Runt(t *testing.T) {
	_, bob := establishedPair(t)
	if _, derr := bob.Decrypt([]byte{1, 2}); derr != DecryptErrRunt {
		t.Errorf("Decrypt(runt) = %s, want RUNT", derr)
	}
}

func TestEncrypt_NoPeerKey(t *testing.T) {
	caA, _ := newTestPair(t)
	s, err := caA.NewSession(addr.Key{}, "keyless")
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if _, err := s.Encrypt([]byte("x")); err != ErrNoPeerKey {
		t.Errorf("Encrypt() error = %v, want ErrNoPeerKey", err)
	}
}

func TestNewSession_RejectsBadKeys(t *testing.T) {
	caA, _ := newTestPair(t)

	if _, err := caA.NewSession(caA.PublicKey(), "self"); err != ErrLoopbackKey {
		t.Errorf("NewSession(own key) error = %v, want ErrLoopbackKey", err)
	}
	// The zero... an all-ones key almost surely derives outside fc00::/8.
	bad := addr.Key{}
	for i := range bad {
		bad[i] = 0xFF
	}
	if _, ok := addr.ForPublicKey(bad); !ok {
		if _, err := caA.NewSession(bad, "bad"); err != ErrBadPeerKey {
			t.Errorf("NewSession(bad key) error = %v, want ErrBadPeerKey", err)
		}
	}
}

func TestSimultaneousHello(t *testing.T) {
	caA, caB := newTestPair(t)
	alice, _ := caA.NewSession(caB.PublicKey(), "alice")
	bob, _ := caB.NewSession(caA.PublicKey(), "bob")

	helloA, _ := alice.Encrypt(nil)
	helloB, _ := bob.Encrypt(nil)

	_, errA := alice.Decrypt(helloB)
	_, errB := bob.Decrypt(helloA)

	// Exactly one side folds to responder, the other rejects.
	folded := 0
	if errA == DecryptErrNone {
		folded++
		if alice.State() != StateReceivedHello {
			t.Errorf("alice state = %s, want RECEIVED_HELLO", alice.State())
		}
	} else if errA != DecryptErrWiseguy {
		t.Errorf("alice Decrypt() = %s", errA)
	}
	if errB == DecryptErrNone {
		folded++
		if bob.State() != StateReceivedHello {
			t.Errorf("bob state = %s, want RECEIVED_HELLO", bob.State())
		}
	} else if errB != DecryptErrWiseguy {
		t.Errorf("bob Decrypt() = %s", errB)
	}
	if folded != 1 {
		t.Errorf("%d sides folded to responder, want exactly 1", folded)
	}
}
