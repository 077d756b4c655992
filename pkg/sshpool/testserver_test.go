package sshpool

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// testServer is a pure Go in-process SSH server so sshpool tests can
// exercise Session/Pool against a real protocol handshake without a system
// sshd.
type testServer struct {
	port      int
	hostKey   ssh.Signer
	clientKey ssh.Signer
	listener  net.Listener
	wg        sync.WaitGroup
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()
	_, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Skipf("generate client key: %v", err)
	}
	clientKey, err := ssh.NewSignerFromKey(clientPriv)
	if err != nil {
		t.Skipf("client signer: %v", err)
	}
	return startTestServerWithSigner(t, clientKey)
}

// startTestServerWithSigner starts a test server that accepts exactly
// clientKey as the authorized client public key, so Pool.Connect's real
// auth chain (explicit identity file) can be exercised end to end.
func startTestServerWithSigner(t *testing.T, clientKey ssh.Signer) *testServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Skipf("generate host key: %v", err)
	}
	hostKey, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Skipf("host signer: %v", err)
	}

	clientSSHPub := clientKey.PublicKey()

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), clientSSHPub.Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	s := &testServer{port: port, hostKey: hostKey, clientKey: clientKey, listener: listener}
	s.wg.Add(1)
	go s.acceptLoop(config)
	t.Cleanup(s.Stop)
	return s
}

func (s *testServer) acceptLoop(config *ssh.ServerConfig) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn, config)
	}
}

func (s *testServer) handleConn(netConn net.Conn, config *ssh.ServerConfig) {
	defer s.wg.Done()
	defer func() { _ = netConn.Close() }()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, config)
	if err != nil {
		return
	}
	defer func() { _ = sshConn.Close() }()

	go func() {
		for req := range reqs {
			if req.Type == "keepalive@openssh.com" && req.WantReply {
				_ = req.Reply(true, nil)
				continue
			}
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}()

	for newChannel := range chans {
		s.wg.Add(1)
		go s.handleChannel(newChannel)
	}
}

func (s *testServer) handleChannel(newChannel ssh.NewChannel) {
	defer s.wg.Done()
	if newChannel.ChannelType() != "session" {
		_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
		return
	}
	channel, requests, err := newChannel.Accept()
	if err != nil {
		return
	}
	defer func() { _ = channel.Close() }()

	for req := range requests {
		switch req.Type {
		case "exec":
			s.handleExec(channel, req)
			return
		default:
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
		}
	}
}

func (s *testServer) handleExec(channel ssh.Channel, req *ssh.Request) {
	var execReq struct{ Command string }
	if err := ssh.Unmarshal(req.Payload, &execReq); err != nil {
		if req.WantReply {
			_ = req.Reply(false, nil)
		}
		return
	}
	if req.WantReply {
		_ = req.Reply(true, nil)
	}

	cmd := exec.Command("sh", "-c", execReq.Command)
	cmd.Stdout = channel
	cmd.Stderr = channel.Stderr()
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}
	exitStatus := struct{ Status uint32 }{uint32(exitCode)}
	_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(&exitStatus))
	_ = channel.Close()
}

func (s *testServer) Stop() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
}

func (s *testServer) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.port)
}

// dialDirect bypasses Pool/Dial's ssh-config/auth-chain plumbing and hands
// back a Session wrapping a raw client authenticated with the test server's
// client key, for tests that only care about Exec/PTY behavior.
func (s *testServer) dialDirect(t *testing.T, user string) *Session {
	t.Helper()
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(s.clientKey)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	client, err := ssh.Dial("tcp", s.Addr(), cfg)
	if err != nil {
		t.Fatalf("dial test server: %v", err)
	}
	return &Session{client: client, host: "127.0.0.1"}
}
