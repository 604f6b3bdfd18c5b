package crypto

import (
	"fmt"
	"haters/domain"

	"github.com/alexedwards/argon2id"
)

const (
	saltLength = 16
	keyLength  = 32
)

// HashCost is the tunable part of argon2id. MemoryKiB is in kibibytes.
type HashCost struct {
	Iterations  uint32
	MemoryKiB   uint32
	Parallelism uint8
}

var DefaultHashCost = HashCost{Iterations: 3, MemoryKiB: 64 * 1024, Parallelism: 1}

type Argon2idHasher struct {
	params *argon2id.Params
}

func NewArgon2idHasher(cost HashCost) *Argon2idHasher {
	return &Argon2idHasher{
		params: &argon2id.Params{
			Iterations:  cost.Iterations,
			Memory:      cost.MemoryKiB,
			Parallelism: cost.Parallelism,
			SaltLength:  saltLength,
			KeyLength:   keyLength,
		},
	}
}

func (h *Argon2idHasher) Hash(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, h.params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.UnexpectedPasswordHashingError, err)
	}
	return hash, nil
}

// Compare checks password against an encoded hash. The hash carries its own
// cost, so hashes made under an older HashCost keep verifying.
func (h *Argon2idHasher) Compare(hash, password string) (bool, error) {
	match, _, err := argon2id.CheckHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.UnexpectedPasswordHashComparisonError, err)
	}
	return match, nil
}
