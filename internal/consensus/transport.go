package consensus

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/hashicorp/raft"
)

// handshakeNonceLen is the size of the random challenge each side writes
// before computing its auth tag.
const handshakeNonceLen = 16

// authenticatedStreamLayer is a TCP raft.StreamLayer that requires every
// dialed or accepted connection to complete an HMAC challenge-response
// handshake before being handed to Raft's RPC codec.
type authenticatedStreamLayer struct {
	listener net.Listener
	addr     net.Addr
	key      []byte
}

// NewAuthenticatedStreamLayer listens on bindAddr and returns a
// raft.StreamLayer that authenticates every connection with sharedKey.
func NewAuthenticatedStreamLayer(bindAddr string, sharedKey []byte) (raft.StreamLayer, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("consensus: listen %q: %w", bindAddr, err)
	}
	return &authenticatedStreamLayer{listener: ln, addr: ln.Addr(), key: sharedKey}, nil
}

func (s *authenticatedStreamLayer) Addr() net.Addr { return s.addr }

func (s *authenticatedStreamLayer) Close() error { return s.listener.Close() }

// Accept waits for a connection and verifies its handshake before
// returning it to the Raft transport.
func (s *authenticatedStreamLayer) Accept() (net.Conn, error) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return nil, err
		}
		if err := s.serverHandshake(conn); err != nil {
			conn.Close()
			continue
		}
		return conn, nil
	}
}

// Dial connects to address and performs the client side of the handshake.
func (s *authenticatedStreamLayer) Dial(address raft.ServerAddress, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", string(address), timeout)
	if err != nil {
		return nil, err
	}
	if err := s.clientHandshake(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// clientHandshake sends a random nonce, reads back the server's tag over
// that nonce, and verifies it before the connection is used for Raft RPCs.
func (s *authenticatedStreamLayer) clientHandshake(conn net.Conn) error {
	nonce := make([]byte, handshakeNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	if _, err := conn.Write(nonce); err != nil {
		return err
	}
	tag := make([]byte, sha256.Size)
	if _, err := io.ReadFull(conn, tag); err != nil {
		return err
	}
	if !hmac.Equal(tag, computeTag(s.key, nonce)) {
		return fmt.Errorf("consensus: byzantine handshake tag mismatch dialing %s", conn.RemoteAddr())
	}
	return nil
}

// serverHandshake reads the client's nonce and replies with this node's
// HMAC tag over it, proving possession of the shared key.
func (s *authenticatedStreamLayer) serverHandshake(conn net.Conn) error {
	nonce := make([]byte, handshakeNonceLen)
	if _, err := io.ReadFull(conn, nonce); err != nil {
		return err
	}
	_, err := conn.Write(computeTag(s.key, nonce))
	return err
}

func computeTag(key, nonce []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(nonce)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(nonce)))
	mac.Write(lenBuf[:])
	return mac.Sum(nil)
}
