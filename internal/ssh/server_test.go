package ssh

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/secret"
	"github.com/eugeniofciuvasile/ssh-vault/internal/vault"
)

const shellGreeting = "hello from test\r\n"

// testServer is an in-process SSH server accepting one password and one
// public key. Session channels support a canned shell and the sftp
// subsystem.
type testServer struct {
	listener net.Listener
	hostKey  ssh.Signer

	mu    sync.Mutex
	conns []net.Conn
}

func newHostKey(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("Failed to create host signer: %v", err)
	}
	return signer
}

func newTestServer(t *testing.T, password string, authorized ssh.PublicKey) *testServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen on a port: %v", err)
	}

	srv := &testServer{listener: listener, hostKey: newHostKey(t)}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if password != "" && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %s", c.User())
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if authorized != nil && bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("public key rejected")
		},
	}
	cfg.AddHostKey(srv.hostKey)

	go srv.serve(cfg)
	t.Cleanup(func() {
		listener.Close()
		srv.dropAll()
	})
	return srv
}

func (s *testServer) serve(cfg *ssh.ServerConfig) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handle(conn, cfg)
	}
}

func (s *testServer) handle(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go handleSessionChannel(channel, requests)
	}
}

func handleSessionChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	for req := range requests {
		switch req.Type {
		case "pty-req", "env", "window-change":
			req.Reply(true, nil)
		case "shell":
			req.Reply(true, nil)
			go func() {
				io.WriteString(channel, shellGreeting)
				channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
				channel.Close()
			}()
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go func() {
				defer channel.Close()
				server, err := sftp.NewServer(channel)
				if err != nil {
					return
				}
				server.Serve()
				server.Close()
			}()
		default:
			req.Reply(false, nil)
		}
	}
}

// dropAll cuts every accepted connection, like a network failure.
func (s *testServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *testServer) addr() (string, int) {
	host, portStr, _ := net.SplitHostPort(s.listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func (s *testServer) profile(auth config.AuthMethod, fallback ...config.AuthMethod) config.ServerProfile {
	host, port := s.addr()
	return config.ServerProfile{
		ID:       "test",
		Host:     host,
		Port:     port,
		Username: "admin",
		Auth:     auth,
		Fallback: fallback,
	}
}

// silentListener accepts TCP connections and never speaks SSH.
func silentListener(t *testing.T) (string, int) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen on a port: %v", err)
	}
	var mu sync.Mutex
	var held []net.Conn
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		listener.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range held {
			c.Close()
		}
	})
	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// fakeSecrets treats a Sealed ciphertext as its own plaintext.
type fakeSecrets struct {
	locked bool
	err    error
}

func (f *fakeSecrets) OpenSecret(s *secret.Sealed) ([]byte, error) {
	if f.locked {
		return nil, vault.ErrLocked
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte(nil), s.Ciphertext...), nil
}

func sealedString(s string) *secret.Sealed {
	return &secret.Sealed{Ciphertext: []byte(s)}
}

func newTestManager(t *testing.T, secrets SecretOpener) *Manager {
	t.Helper()
	return NewManager(secrets, Options{
		ConnectTimeout: 5 * time.Second,
		KnownHostsPath: filepath.Join(t.TempDir(), "known_hosts"),
		HostKeyPolicy:  HostKeyInsecure,
	})
}

// newKeyFile writes an ed25519 private key, encrypted when passphrase is
// set, and returns its path and public half.
func newKeyFile(t *testing.T, passphrase string) (string, ssh.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	}
	if err != nil {
		t.Fatalf("Failed to marshal key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("Failed to write key: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("Failed to convert public key: %v", err)
	}
	return path, sshPub
}

// finish drains an attempt and returns every state it reported.
func finish(t *testing.T, a *Attempt) ([]State, *Session, error) {
	t.Helper()
	var states []State
	timeout := time.After(10 * time.Second)
	for {
		select {
		case s, ok := <-a.States():
			if !ok {
				sess, err := a.Wait()
				return states, sess, err
			}
			states = append(states, s)
		case <-timeout:
			t.Fatal("Attempt did not finish in time")
		}
	}
}
