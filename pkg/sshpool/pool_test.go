package sshpool

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServerWithKey is like startTestServer but lets the caller supply
// the accepted client key, so Pool.Connect's real auth chain (explicit
// identity file) can be exercised end to end.
func startTestServerWithKeyPair(t *testing.T) (*testServer, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(block)

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pemBytes, 0o600))

	_ = pub
	srv := startTestServerWithSigner(t, signer)
	return srv, keyPath
}

func TestPoolConnectWithExplicitIdentity(t *testing.T) {
	srv, keyPath := startTestServerWithKeyPair(t)

	pool := NewPool(nil)
	defer pool.Shutdown()

	target := fmt.Sprintf("tester@%s", srv.Addr())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := pool.Connect(ctx, target, Credentials{KeyPath: keyPath})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, 1, pool.Size())

	// Reconnecting with the same key reuses the cached entry.
	sess2, err := pool.Connect(ctx, target, Credentials{KeyPath: keyPath})
	require.NoError(t, err)
	assert.Same(t, sess, sess2)
}

func TestPoolDisconnectEvicts(t *testing.T) {
	srv, keyPath := startTestServerWithKeyPair(t)

	pool := NewPool(nil)
	defer pool.Shutdown()

	target := fmt.Sprintf("tester@%s", srv.Addr())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := pool.Connect(ctx, target, Credentials{KeyPath: keyPath})
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Size())

	pool.Disconnect(target, Credentials{KeyPath: keyPath})
	assert.Equal(t, 0, pool.Size())
}

func TestPoolConcurrentConnectsShareOneSession(t *testing.T) {
	srv, keyPath := startTestServerWithKeyPair(t)

	pool := NewPool(nil)
	defer pool.Shutdown()

	target := fmt.Sprintf("tester@%s", srv.Addr())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const callers = 4
	sessions := make(chan *Session, callers)
	for range callers {
		go func() {
			sess, err := pool.Connect(ctx, target, Credentials{KeyPath: keyPath})
			assert.NoError(t, err)
			sessions <- sess
		}()
	}

	first := <-sessions
	for range callers - 1 {
		assert.Same(t, first, <-sessions)
	}
	assert.Equal(t, 1, pool.Size())
}

func TestPoolConnectCancelledMidHandshakeForgetsKey(t *testing.T) {
	// No listener ever accepts, so the handshake blocks until ctx fires.
	pool := NewPool(nil)
	defer pool.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := pool.Connect(ctx, "tester@192.0.2.1:22", Credentials{})
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return pool.Size() == 0
	}, 5*time.Second, 10*time.Millisecond)
}
