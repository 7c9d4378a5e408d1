// Package joincred models the credential a worker uses to join a cluster:
// the API endpoint, a bootstrap token and the CA certificate hash.
package joincred

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

// ErrInvalidCredential is returned when a join credential cannot be parsed or
// fails validation.
var ErrInvalidCredential = errors.New("invalid join credential")

// DefaultPath is the documented hand-off location for the join command.
const DefaultPath = "/etc/kubernetes/nodeprep/join-command"

var (
	tokenPattern = regexp.MustCompile(`^[a-z0-9]{6}\.[a-z0-9]{16}$`)
	hashPattern  = regexp.MustCompile(`^sha256:[a-f0-9]{64}$`)
)

// Credential is a validated join credential.
type Credential struct {
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	Token      string `json:"token" yaml:"token"`
	CACertHash string `json:"caCertHash" yaml:"ca_cert_hash"`
}

// New builds a credential from its parts and validates it.
func New(endpoint, token, caCertHash string) (Credential, error) {
	c := Credential{
		Endpoint:   strings.TrimSpace(endpoint),
		Token:      strings.TrimSpace(token),
		CACertHash: strings.TrimSpace(caCertHash),
	}
	if err := c.Validate(); err != nil {
		return Credential{}, err
	}
	return c, nil
}

// Parse reads a credential from a kubeadm join command line, as printed by
// "kubeadm token create --print-join-command". Flags other than the token and
// the discovery hash are ignored.
func Parse(line string) (Credential, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "kubeadm" || fields[1] != "join" {
		return Credential{}, fmt.Errorf("%w: expected \"kubeadm join <endpoint> ...\"", ErrInvalidCredential)
	}

	var c Credential
	for i := 2; i < len(fields); i++ {
		f := fields[i]
		name, value, hasValue := strings.Cut(f, "=")
		switch name {
		case "--token", "--discovery-token-ca-cert-hash":
			if !hasValue {
				if i+1 >= len(fields) {
					return Credential{}, fmt.Errorf("%w: flag %s has no value", ErrInvalidCredential, name)
				}
				i++
				value = fields[i]
			}
			if name == "--token" {
				c.Token = value
			} else {
				c.CACertHash = value
			}
		default:
			if !strings.HasPrefix(f, "-") && c.Endpoint == "" {
				c.Endpoint = f
			}
		}
	}

	if err := c.Validate(); err != nil {
		return Credential{}, err
	}
	return c, nil
}

// Validate checks every field of the credential.
func (c Credential) Validate() error {
	host, port, err := net.SplitHostPort(c.Endpoint)
	if err != nil || host == "" || port == "" {
		return fmt.Errorf("%w: endpoint %q must be host:port", ErrInvalidCredential, c.Endpoint)
	}
	if !tokenPattern.MatchString(c.Token) {
		return fmt.Errorf("%w: token must match [a-z0-9]{6}.[a-z0-9]{16}", ErrInvalidCredential)
	}
	if !hashPattern.MatchString(c.CACertHash) {
		return fmt.Errorf("%w: CA cert hash must be sha256:<64 hex chars>", ErrInvalidCredential)
	}
	return nil
}

// IsZero reports whether no field is set.
func (c Credential) IsZero() bool {
	return c.Endpoint == "" && c.Token == "" && c.CACertHash == ""
}

// Args returns the arguments for "kubeadm join".
func (c Credential) Args() []string {
	return []string{
		"join", c.Endpoint,
		"--token", c.Token,
		"--discovery-token-ca-cert-hash", c.CACertHash,
	}
}

// String renders the credential as a single kubeadm join command line.
func (c Credential) String() string {
	return "kubeadm " + strings.Join(c.Args(), " ")
}

// Redacted renders the command line with the token secret masked.
func (c Credential) Redacted() string {
	token := c.Token
	if id, _, ok := strings.Cut(token, "."); ok {
		token = id + ".****************"
	}
	r := c
	r.Token = token
	return r.String()
}

// WriteFile persists the credential as one line with owner-only permissions.
func WriteFile(fs ports.FileSystem, path string, c Credential) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := fs.WriteFile(path, []byte(c.String()+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write join command: %w", err)
	}
	return nil
}

// ReadFile loads a credential previously written with WriteFile.
func ReadFile(fs ports.FileSystem, path string) (Credential, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read join command: %w", err)
	}
	return Parse(strings.TrimSpace(string(data)))
}

