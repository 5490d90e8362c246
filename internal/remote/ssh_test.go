package remote

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestShellJoin(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		args []string
		want string
	}{
		{"plain", "pkill", []string{"-f", "web_server.py"}, "pkill -f web_server.py"},
		{"spaces", "pkill", []string{"-f", "sage web_server"}, "pkill -f 'sage web_server'"},
		{"quote", "echo", []string{"it's"}, `echo 'it'"'"'s'`},
		{"empty", "echo", []string{""}, "echo ''"},
		{"glob", "rm", []string{"-f", "/tmp/*.sock"}, "rm -f '/tmp/*.sock'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShellJoin(tt.cmd, tt.args...))
		})
	}
}

func TestConfig_Addr(t *testing.T) {
	assert.Equal(t, "cell1:22", Config{Host: "cell1"}.Addr())
	assert.Equal(t, "cell1:2222", Config{Host: "cell1", Port: 2222}.Addr())
	assert.Equal(t, "[::1]:22", Config{Host: "::1"}.Addr())
}

func writeTestKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestNewSSHRunner_Validation(t *testing.T) {
	key := writeTestKey(t)

	_, err := NewSSHRunner(Config{User: "sc_serv", KeyFile: key, Insecure: true})
	assert.Error(t, err, "host required")

	_, err = NewSSHRunner(Config{Host: "cell1", KeyFile: key, Insecure: true})
	assert.Error(t, err, "user required")

	_, err = NewSSHRunner(Config{Host: "cell1", User: "sc_serv", KeyFile: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err, "missing key")

	_, err = NewSSHRunner(Config{Host: "cell1", User: "sc_serv", KeyFile: key, KnownHostsFile: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err, "missing known_hosts")

	r, err := NewSSHRunner(Config{Host: "cell1", User: "sc_serv", KeyFile: key, Insecure: true})
	require.NoError(t, err)
	assert.Equal(t, "cell1", r.Host())
}
