package wallet

import (
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	testKey     = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func TestConnectAcceptsPrefixedAndBareKeys(t *testing.T) {
	for _, secret := range []string{testKey, "0x" + testKey, "0X" + testKey, "  0x" + testKey + "\n"} {
		s, err := Connect(secret)
		if err != nil {
			t.Fatalf("Connect(%q): %v", secret, err)
		}
		if !strings.EqualFold(s.Address(), testAddress) {
			t.Fatalf("Address = %s, want %s", s.Address(), testAddress)
		}
	}
}

func TestConnectRejectsMalformedKeys(t *testing.T) {
	bad := []string{
		"",
		"0x",
		testKey[:62],
		testKey + "00",
		strings.Repeat("z", 64),
		strings.Repeat("0", 64), // zero is not a valid scalar
	}
	for _, secret := range bad {
		if _, err := Connect(secret); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("Connect(%q) err = %v, want ErrInvalidCredential", secret, err)
		}
	}
}

func TestShortAddress(t *testing.T) {
	s, err := Connect(testKey)
	if err != nil {
		t.Fatal(err)
	}
	short := s.ShortAddress()
	if short != s.Address()[:6]+"..."+s.Address()[len(s.Address())-4:] {
		t.Fatalf("ShortAddress = %q", short)
	}
	if Truncate("0xabc") != "0xabc" {
		t.Fatal("Truncate should leave short strings alone")
	}
}

func TestSignRecoversToAddress(t *testing.T) {
	s, err := Connect(testKey)
	if err != nil {
		t.Fatal(err)
	}
	digest := crypto.Keccak256([]byte("authorize transfer"))

	sig, err := s.Sign(digest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Fatalf("V = %d, want 27 or 28", v)
	}

	raw := make([]byte, 65)
	copy(raw, sig)
	raw[64] -= 27
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub).Hex(); got != s.Address() {
		t.Fatalf("recovered %s, want %s", got, s.Address())
	}
}

func TestSignRejectsWrongDigestLength(t *testing.T) {
	s, err := Connect(testKey)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Sign([]byte("short")); err == nil {
		t.Fatal("Sign accepted a non-32-byte digest")
	}
}

func TestDisconnectClosesSession(t *testing.T) {
	s, err := Connect(testKey)
	if err != nil {
		t.Fatal(err)
	}
	s.Disconnect()
	s.Disconnect()

	if s.Active() {
		t.Fatal("session still active after Disconnect")
	}
	if _, err := s.Sign(make([]byte, 32)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Sign after Disconnect err = %v, want ErrSessionClosed", err)
	}
	if !strings.EqualFold(s.Address(), testAddress) {
		t.Fatal("address should remain readable after disconnect")
	}
}

func TestNilSessionIsInactive(t *testing.T) {
	var s *Session
	if s.Active() {
		t.Fatal("nil session reported active")
	}
}

func TestSignIsSafeForConcurrentUse(t *testing.T) {
	s, err := Connect(testKey)
	if err != nil {
		t.Fatal(err)
	}
	digest := crypto.Keccak256([]byte("x"))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Sign(digest); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Sign: %v", err)
	}
}

func TestManagerReplacesPreviousSession(t *testing.T) {
	var m Manager
	if _, ok := m.Active(); ok {
		t.Fatal("new manager should have no active session")
	}

	first, err := m.Connect(testKey)
	if err != nil {
		t.Fatal(err)
	}

	otherKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Connect(hex.EncodeToString(crypto.FromECDSA(otherKey)))
	if err != nil {
		t.Fatal(err)
	}

	if first.Active() {
		t.Fatal("previous session still active after a new Connect")
	}
	active, ok := m.Active()
	if !ok || active != second {
		t.Fatal("Active should return the newest session")
	}

	m.Disconnect()
	if _, ok := m.Active(); ok {
		t.Fatal("session active after manager Disconnect")
	}
	if second.Active() {
		t.Fatal("manager Disconnect did not close the session")
	}
}

func TestManagerFailedConnectLeavesNoSession(t *testing.T) {
	var m Manager
	prev, err := m.Connect(testKey)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Connect("garbage"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("err = %v, want ErrInvalidCredential", err)
	}
	if prev.Active() {
		t.Fatal("previous session should be invalidated even when the new key is bad")
	}
	if _, ok := m.Active(); ok {
		t.Fatal("no session should be active after a failed connect")
	}
}
