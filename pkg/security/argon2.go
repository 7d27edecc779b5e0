// Package security hashes shopper passwords with Argon2id. Hashes are stored
// in the PHC string format so the cost parameters travel with each hash.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

var ErrInvalidHash = errors.New("invalid argon2id hash")

type cost struct {
	memory  uint32
	time    uint32
	threads uint8
	saltLen uint32
	keyLen  uint32
}

// weakerThan reports whether c falls short of target on any axis.
func (c cost) weakerThan(target cost) bool {
	return c.memory < target.memory || c.time < target.time || c.threads < target.threads || c.keyLen < target.keyLen
}

// Hasher applies one configured cost. Out-of-range settings are clamped.
type Hasher struct {
	cost cost
}

func NewHasher(cfg config.PasswordConfig) *Hasher {
	return &Hasher{cost: cost{
		memory:  clamp(cfg.ArgonMemoryKB, 8, 512*1024),
		time:    clamp(cfg.ArgonTime, 1, 10),
		threads: uint8(clamp(cfg.ArgonParallelism, 1, 255)),
		saltLen: clamp(cfg.ArgonSaltLen, 8, 64),
		keyLen:  clamp(cfg.ArgonKeyLen, 16, 64),
	}}
}

func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	salt := make([]byte, h.cost.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := derive(password, salt, h.cost)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.cost.memory, h.cost.time, h.cost.threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify compares in constant time. It fails only for a malformed hash.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	c, salt, key, err := parse(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(key, derive(password, salt, c)) == 1, nil
}

// NeedsRehash is true for hashes made with a lower cost than the configured
// one, and for anything that does not parse.
func (h *Hasher) NeedsRehash(encoded string) bool {
	c, _, _, err := parse(encoded)
	return err != nil || c.weakerThan(h.cost)
}

// Burn does the work of one verification and discards it, so a login for an
// unknown email takes as long as one with a wrong password.
func (h *Hasher) Burn(password string) {
	_ = derive(password, make([]byte, h.cost.saltLen), h.cost)
}

var b64 = base64.RawStdEncoding

func derive(password string, salt []byte, c cost) []byte {
	return argon2.IDKey([]byte(password), salt, c.time, c.memory, c.threads, c.keyLen)
}

func parse(encoded string) (cost, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return cost{}, nil, nil, ErrInvalidHash
	}
	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return cost{}, nil, nil, ErrInvalidHash
	}
	var c cost
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &c.memory, &c.time, &c.threads); err != nil {
		return cost{}, nil, nil, ErrInvalidHash
	}
	salt, err := b64.DecodeString(fields[4])
	if err != nil {
		return cost{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return cost{}, nil, nil, ErrInvalidHash
	}
	c.saltLen, c.keyLen = uint32(len(salt)), uint32(len(key))
	return c, salt, key, nil
}

func clamp(v, lo, hi int) uint32 {
	return uint32(min(max(v, lo), hi))
}
