// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package sec

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// # Password Hashing

// HashParams are the argon2id cost parameters applied to new hashes.
//
// # Tuning
//
// Defaults target >=100ms per hash on commodity server hardware. They can be
// overridden at startup from PASSWORD_HASH_PARAMS, but once a hash is stored
// the parameters travel inside the PHC string, so older hashes stay verifiable.
type HashParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams returns the production argon2id cost profile.
func DefaultHashParams() HashParams {
	return HashParams{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// HashPassword hashes a plain-text password using argon2id with a random salt.
//
// The result is a self-describing PHC string:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
func HashPassword(plainTextPassword string, params HashParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("sec: failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plainTextPassword), salt, params.Iterations, params.MemoryKiB, params.Parallelism, params.KeyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		params.MemoryKiB,
		params.Iterations,
		params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return encoded, nil
}

// VerifyPassword compares a plain-text password with a stored hash.
//
// # Transparent Upgrades
//
// Two hash families are accepted:
//   - argon2id PHC strings (current scheme)
//   - bcrypt "$2a$/$2b$" hashes carried over from earlier deployments
//
// needsRehash is true when the stored hash is bcrypt or when its argon2id
// parameters differ from params — the caller should re-hash the now-known
// plain text and persist the upgraded value.
func VerifyPassword(plainTextPassword, existingHash string, params HashParams) (matches, needsRehash bool) {

	// Legacy bcrypt hashes: verify with bcrypt and flag for upgrade.
	if strings.HasPrefix(existingHash, "$2a$") || strings.HasPrefix(existingHash, "$2b$") || strings.HasPrefix(existingHash, "$2y$") {
		err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
		return err == nil, err == nil
	}

	stored, err := decodeHash(existingHash)
	if err != nil {
		return false, false
	}

	candidate := argon2.IDKey([]byte(plainTextPassword), stored.salt, stored.params.Iterations, stored.params.MemoryKiB, stored.params.Parallelism, stored.params.KeyLength)

	// Constant-time comparison of the derived keys.
	if subtle.ConstantTimeCompare(stored.key, candidate) != 1 {
		return false, false
	}

	outdated := stored.params.MemoryKiB != params.MemoryKiB ||
		stored.params.Iterations != params.Iterations ||
		stored.params.Parallelism != params.Parallelism

	return true, outdated
}

// decodedHash is the parsed form of an argon2id PHC string.
type decodedHash struct {
	params HashParams
	salt   []byte
	key    []byte
}

// decodeHash parses an argon2id PHC string back into its components.
func decodeHash(encoded string) (*decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, fmt.Errorf("sec: unrecognized hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("sec: malformed hash version: %w", err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("sec: incompatible argon2 version %d", version)
	}

	decoded := &decodedHash{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&decoded.params.MemoryKiB,
		&decoded.params.Iterations,
		&decoded.params.Parallelism,
	); err != nil {
		return nil, fmt.Errorf("sec: malformed hash parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("sec: malformed hash salt: %w", err)
	}
	decoded.salt = salt
	decoded.params.SaltLength = uint32(len(salt))

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, fmt.Errorf("sec: malformed hash key: %w", err)
	}
	decoded.key = key
	decoded.params.KeyLength = uint32(len(key))

	return decoded, nil
}
