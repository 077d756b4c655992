package sshpool

import (
	"context"
	"os/user"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser(t *testing.T) string {
	u, err := user.Current()
	require.NoError(t, err)
	return u.Username
}

func TestExecCapturesStdoutAndExitCode(t *testing.T) {
	srv := startTestServer(t)
	sess := srv.dialDirect(t, testUser(t))
	defer func() { _ = sess.Close() }()

	stdoutCh := make(chan string, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var lines []string
	done := make(chan struct{})
	go func() {
		for l := range stdoutCh {
			lines = append(lines, l)
		}
		close(done)
	}()

	result, err := sess.Exec(ctx, "bash", "echo hello world", stdoutCh, nil)
	close(stdoutCh)
	<-done

	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello world\n", strings.Join(lines, ""))
}

func TestExecNonZeroExit(t *testing.T) {
	srv := startTestServer(t)
	sess := srv.dialDirect(t, testUser(t))
	defer func() { _ = sess.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sess.Exec(ctx, "bash", "exit 7", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
}

func TestExecCancellationStopsEarly(t *testing.T) {
	srv := startTestServer(t)
	sess := srv.dialDirect(t, testUser(t))
	defer func() { _ = sess.Close() }()

	stdoutCh := make(chan string, 16)
	ctx, cancel := context.WithCancel(context.Background())

	var lines []string
	var mu sync.Mutex
	go func() {
		for l := range stdoutCh {
			mu.Lock()
			lines = append(lines, l)
			mu.Unlock()
		}
	}()

	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	_, err := sess.Exec(ctx, "bash", "for i in 1 2 3; do echo $i; sleep 1; done", stdoutCh, nil)
	close(stdoutCh)

	require.Error(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, lines)
}
