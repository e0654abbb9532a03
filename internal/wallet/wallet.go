// Package wallet holds the session signing key. Keys live in memory only and
// are zeroed on disconnect.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInvalidCredential indicates malformed or wrong-length key material.
	ErrInvalidCredential = errors.New("wallet: invalid private key")
	// ErrSessionClosed indicates use of a disconnected session.
	ErrSessionClosed = errors.New("wallet: session closed")
)

const keyHexLen = 64

// Session owns a private key for the lifetime of a connection.
// It exposes the derived address and a signing capability, never the key.
type Session struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
}

// Connect derives a session from a hex private key, with or without a 0x prefix.
func Connect(secret string) (*Session, error) {
	hexKey := normalizeKey(secret)
	if len(hexKey) != keyHexLen {
		return nil, fmt.Errorf("%w: expected %d hex characters", ErrInvalidCredential, keyHexLen)
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	return &Session{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func normalizeKey(secret string) string {
	s := strings.TrimSpace(secret)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	return s
}

// Address returns the EIP-55 checksummed address. It stays readable after
// Disconnect so receipts and logs can still name the payer.
func (s *Session) Address() string {
	return s.address.Hex()
}

// ShortAddress returns the address truncated for display, e.g. "0x1234...abcd".
func (s *Session) ShortAddress() string {
	return Truncate(s.Address())
}

// Truncate shortens an address to its first 6 and last 4 characters.
func Truncate(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// Active reports whether the session can still sign.
func (s *Session) Active() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != nil
}

// Sign signs a 32-byte digest and returns a 65-byte [R || S || V] signature
// with V in {27, 28}. Calls are serialized.
func (s *Session) Sign(digest []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == nil {
		return nil, ErrSessionClosed
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("wallet: digest must be 32 bytes, got %d", len(digest))
	}

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("wallet: signing: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Disconnect zeroes and discards the key. Safe to call more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == nil {
		return
	}
	s.key.D.SetInt64(0)
	s.key = nil
}

// Manager keeps at most one active session.
type Manager struct {
	mu      sync.Mutex
	current *Session
}

// Connect replaces the active session. The previous session, if any, is
// disconnected before the new key is parsed, so a failed connect leaves no
// session active.
func (m *Manager) Connect(secret string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Disconnect()
		m.current = nil
	}

	s, err := Connect(secret)
	if err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Active returns the active session, if any.
func (m *Manager) Active() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || !m.current.Active() {
		return nil, false
	}
	return m.current, true
}

// Disconnect discards the active session.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Disconnect()
		m.current = nil
	}
}
