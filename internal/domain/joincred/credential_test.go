package joincred_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/nodeprep/internal/domain/joincred"
	"github.com/felixgeelhaar/nodeprep/internal/testutil/mocks"
)

const (
	testEndpoint = "10.0.0.5:6443"
	testToken    = "abcdef.0123456789abcdef"
	testHash     = "sha256:" + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
)

func TestNew(t *testing.T) {
	t.Parallel()

	c, err := joincred.New(" "+testEndpoint, testToken, testHash)
	require.NoError(t, err)
	assert.Equal(t, testEndpoint, c.Endpoint)
	assert.False(t, c.IsZero())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint string
		token    string
		hash     string
	}{
		{"missing port", "10.0.0.5", testToken, testHash},
		{"empty host", ":6443", testToken, testHash},
		{"uppercase token", testEndpoint, "ABCDEF.0123456789abcdef", testHash},
		{"short token", testEndpoint, "abc.0123", testHash},
		{"hash without prefix", testEndpoint, testToken, strings.TrimPrefix(testHash, "sha256:")},
		{"short hash", testEndpoint, testToken, "sha256:abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := joincred.New(tt.endpoint, tt.token, tt.hash)
			assert.ErrorIs(t, err, joincred.ErrInvalidCredential)
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
	}{
		{
			name: "print-join-command output",
			line: "kubeadm join " + testEndpoint + " --token " + testToken + " --discovery-token-ca-cert-hash " + testHash + " ",
		},
		{
			name: "equals form with extra flags",
			line: "kubeadm join --token=" + testToken + " " + testEndpoint + " --discovery-token-ca-cert-hash=" + testHash + " --v=5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := joincred.Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, testEndpoint, c.Endpoint)
			assert.Equal(t, testToken, c.Token)
			assert.Equal(t, testHash, c.CACertHash)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		"",
		"kubectl join " + testEndpoint,
		"kubeadm join " + testEndpoint + " --token",
		"kubeadm join " + testEndpoint + " --token " + testToken,
	} {
		_, err := joincred.Parse(line)
		assert.ErrorIs(t, err, joincred.ErrInvalidCredential, line)
	}
}

func TestStringRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := joincred.New(testEndpoint, testToken, testHash)
	require.NoError(t, err)

	line := c.String()
	assert.NotContains(t, line, "\n")
	assert.True(t, strings.HasPrefix(line, "kubeadm join 10.0.0.5:6443 "))

	parsed, err := joincred.Parse(line)
	require.NoError(t, err)
	assert.Equal(t, c, parsed)
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	c, err := joincred.New(testEndpoint, testToken, testHash)
	require.NoError(t, err)
	assert.NotContains(t, c.Redacted(), "0123456789abcdef ")
	assert.Contains(t, c.Redacted(), "abcdef.****************")
}

func TestWriteAndReadFile(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem()
	c, err := joincred.New(testEndpoint, testToken, testHash)
	require.NoError(t, err)

	require.NoError(t, joincred.WriteFile(fs, joincred.DefaultPath, c))
	assert.Equal(t, os.FileMode(0o600), fs.Mode(joincred.DefaultPath))
	assert.Equal(t, 1, strings.Count(fs.Content(joincred.DefaultPath), "\n"))

	got, err := joincred.ReadFile(fs, joincred.DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = joincred.ReadFile(fs, "/missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
