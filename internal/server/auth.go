package server

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/joseph-ayodele/docflow/internal/common"
)

// AnonymousClient owns every job when authentication is disabled.
const AnonymousClient = "anonymous"

// KeyRing maps client ids to bcrypt hashes of their API key secrets.
type KeyRing struct {
	hashes map[string][]byte
}

// ParseKeyRing reads entries of the form "client_id:bcrypt-hash".
func ParseKeyRing(entries []string) (*KeyRing, error) {
	k := &KeyRing{hashes: make(map[string][]byte, len(entries))}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		client, hash, ok := strings.Cut(e, ":")
		client = strings.TrimSpace(client)
		if !ok || client == "" || strings.Contains(client, ".") {
			return nil, fmt.Errorf("api key entry %q: want client_id:bcrypt-hash", client)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("api key entry %q: %w", client, err)
		}
		k.hashes[client] = []byte(hash)
	}
	return k, nil
}

// Empty reports whether authentication is disabled.
func (k *KeyRing) Empty() bool {
	return k == nil || len(k.hashes) == 0
}

// Verify checks a raw "client_id.secret" key and returns the client id.
func (k *KeyRing) Verify(raw string) (string, error) {
	client, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || client == "" || secret == "" {
		return "", fmt.Errorf("%w: malformed API key", common.ErrUnauthorized)
	}
	hash, found := k.hashes[client]
	if !found {
		return "", fmt.Errorf("%w: invalid API key", common.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return "", fmt.Errorf("%w: invalid API key", common.ErrUnauthorized)
	}
	return client, nil
}

// HashSecret produces the bcrypt hash stored in API_KEYS for secret.
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
