// Package auth decides who may open a storefront session and which saved
// cart and wishlist a session gets.
package auth

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// GuestNamespace holds the state of sessions that presented no public key.
const GuestNamespace = "guest"

// ErrAllowlistNotFound is returned when the allowlist file doesn't exist.
var ErrAllowlistNotFound = errors.New("allowlist file not found")

// Allowlist is a set of authorized buyer keys.
type Allowlist struct {
	keys map[string]struct{}
}

// LoadAllowlist reads an OpenSSH authorized_keys file. Blank lines, comments
// and unparsable lines are skipped.
func LoadAllowlist(path string) (*Allowlist, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrAllowlistNotFound
		}
		return nil, fmt.Errorf("opening allowlist: %w", err)
	}
	defer file.Close()

	a := &Allowlist{keys: make(map[string]struct{})}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pubKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			continue
		}
		a.keys[string(pubKey.Marshal())] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading allowlist: %w", err)
	}
	return a, nil
}

// NewAllowlist builds an allowlist from parsed keys.
func NewAllowlist(keys ...ssh.PublicKey) *Allowlist {
	a := &Allowlist{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		a.keys[string(k.Marshal())] = struct{}{}
	}
	return a
}

// Len is the number of distinct keys.
func (a *Allowlist) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Allows reports whether key is on the list.
func (a *Allowlist) Allows(key ssh.PublicKey) bool {
	if a == nil || key == nil {
		return false
	}
	_, ok := a.keys[string(key.Marshal())]
	return ok
}

// Namespace derives the storage namespace for a buyer from their public key,
// so reconnecting with the same key restores the same cart and likes.
func Namespace(key ssh.PublicKey) string {
	if key == nil {
		return GuestNamespace
	}
	sum := sha256.Sum256(key.Marshal())
	return "buyer-" + hex.EncodeToString(sum[:12])
}

// CreateEmptyAllowlist creates an empty allowlist file with a helpful comment.
func CreateEmptyAllowlist(path string) error {
	content := `# Storefront buyer allowlist
# One public key per line in OpenSSH authorized_keys format, e.g.
# ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIExample... buyer@laptop
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing allowlist: %w", err)
	}
	return nil
}
