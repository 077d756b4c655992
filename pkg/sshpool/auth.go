package sshpool

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// defaultIdentityFiles is the OpenSSH default key list, tried in this
// exact order.
var defaultIdentityFiles = []string{
	"id_rsa", "id_ecdsa", "id_ecdsa_sk", "id_ed25519", "id_ed25519_sk", "id_xmss", "id_dsa",
}

// Credentials is the block-level identity a caller may supply explicitly.
type Credentials struct {
	// KeyPath is a path to a private key file.
	KeyPath string
	// KeyPEM is a pasted PEM-encoded private key, used when KeyPath is empty.
	KeyPEM []byte
	// Passphrase decrypts an encrypted private key.
	Passphrase string
	// Password is tried last in the chain.
	Password string
}

// authChain assembles ssh.AuthMethods in OpenSSH precedence order: explicit
// identity (no fallback on failure) → agent → ssh-config identity files →
// default key files → password.
//
// Unlike most of the chain, an explicit identity that fails to parse/load is
// NOT silently skipped; an explicit identity is tried first and never
// falls back, so a bad explicit key is a hard error.
func authChain(host string, creds Credentials, cfg *hostConfig, log *slog.Logger) ([]ssh.AuthMethod, error) {
	if creds.KeyPath != "" || len(creds.KeyPEM) > 0 {
		signer, err := loadSigner(creds.KeyPath, creds.KeyPEM, creds.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("sshpool: explicit identity for %s: %w", host, err)
		}
		return []ssh.AuthMethod{certOrKeyAuth(creds.KeyPath, signer, log)}, nil
	}

	var methods []ssh.AuthMethod

	if am, ok := agentAuth(cfg); ok {
		methods = append(methods, am)
	}

	for _, path := range cfg.IdentityFiles {
		if signer, err := loadSignerFromFile(expandHome(path), ""); err == nil {
			methods = append(methods, certOrKeyAuth(path, signer, log))
		}
	}

	for _, name := range defaultIdentityFiles {
		path := filepath.Join(homeDir(), ".ssh", name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if signer, err := loadSignerFromFile(path, ""); err == nil {
			methods = append(methods, certOrKeyAuth(path, signer, log))
		}
	}

	if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
	} else if len(creds.KeyPEM) > 0 {
		// caller-provided key with no path, tried last per step 5
		if signer, err := ssh.ParsePrivateKey(creds.KeyPEM); err == nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	return methods, nil
}

// agentAuth dials the ssh-agent socket named by $SSH_AUTH_SOCK, or by
// IdentityAgent from ~/.ssh/config when cfg names one.
func agentAuth(cfg *hostConfig) (ssh.AuthMethod, bool) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if cfg != nil && cfg.IdentityAgent != "" {
		sock = expandHome(cfg.IdentityAgent)
	}
	if sock == "" {
		return nil, false
	}
	conn, err := dialAgent(sock)
	if err != nil {
		return nil, false
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), true
}

func loadSigner(path string, pem []byte, passphrase string) (ssh.Signer, error) {
	if path != "" {
		return loadSignerFromFile(expandHome(path), passphrase)
	}
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(pem)
}

func loadSignerFromFile(path, passphrase string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(data)
}

// certOrKeyAuth looks for a co-located "<path>-cert.pub" and, if present and
// currently valid, authenticates with the certificate instead of the bare
// key. An expired or not-yet-valid cert produces a warning and falls back to
// the bare key; this never fails hard.
func certOrKeyAuth(keyPath string, signer ssh.Signer, log *slog.Logger) ssh.AuthMethod {
	if keyPath == "" {
		return ssh.PublicKeys(signer)
	}
	certPath := keyPath + "-cert.pub"
	data, err := os.ReadFile(certPath)
	if err != nil {
		return ssh.PublicKeys(signer)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		if log != nil {
			log.Warn("sshpool: unparseable certificate, falling back to key", "cert_path", certPath, "error", err)
		}
		return ssh.PublicKeys(signer)
	}
	cert, ok := pub.(*ssh.Certificate)
	if !ok {
		return ssh.PublicKeys(signer)
	}

	now := uint64(time.Now().Unix())
	if cert.ValidAfter != 0 && now < cert.ValidAfter {
		if log != nil {
			log.Warn("sshpool: certificate not yet valid, falling back to key", "cert_path", certPath)
		}
		return ssh.PublicKeys(signer)
	}
	if cert.ValidBefore != ssh.CertTimeInfinity && now > cert.ValidBefore {
		if log != nil {
			log.Warn("sshpool: CertificateExpired, falling back to key", "cert_path", certPath)
		}
		return ssh.PublicKeys(signer)
	}

	certSigner, err := ssh.NewCertSigner(cert, signer)
	if err != nil {
		return ssh.PublicKeys(signer)
	}
	return ssh.PublicKeys(certSigner)
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if len(path) > 1 && path[:2] == "~/" {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
