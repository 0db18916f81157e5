// Package envelope seals session metadata fields, such as file names and
// MIME types, with authenticated encryption so that no plaintext metadata
// ever reaches the persistent store. Sealed values are rendered as a
// colon-separated hex envelope and remain ordinary strings to the caller.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/scrypt"
)

var log = logrus.WithField("prefix", "envelope")

const (
	keyLength   = 32
	nonceLength = 12
	tagLength   = 16

	// Derivation cost for keys supplied as passphrases rather than raw hex.
	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// kdfSalt separates passphrase-derived metadata keys from any other use of
// the same passphrase. Confidentiality rests on the key material itself.
var kdfSalt = []byte("beamgate-metadata-v1")

// ErrMissingKey indicates that no key material was configured while the
// deployment requires one.
var ErrMissingKey = errors.New("no metadata encryption key configured")

// Sealer encrypts and decrypts metadata fields with a process-wide key. The
// key is read-only after construction, so a single Sealer is safe for
// concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// New builds a Sealer from configured key material. A 64-character hex value
// is used directly as the 32-byte key; any other non-empty value is run
// through scrypt with a fixed salt. An empty value is a startup error in
// production and falls back to a derived development key otherwise.
func New(keyMaterial string, production bool) (*Sealer, error) {
	key, err := resolveKey(keyMaterial, production)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize block cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize AEAD")
	}
	return &Sealer{aead: aead}, nil
}

func resolveKey(keyMaterial string, production bool) ([]byte, error) {
	if len(keyMaterial) == hex.EncodedLen(keyLength) {
		if key, err := hex.DecodeString(keyMaterial); err == nil {
			return key, nil
		}
		// 64 characters that are not valid hex are treated as a passphrase.
	}
	if keyMaterial == "" {
		if production {
			return nil, ErrMissingKey
		}
		log.Warn("No metadata encryption key configured, deriving a development-only key")
		keyMaterial = "beamgate-insecure-dev-key"
	}
	key, err := scrypt.Key([]byte(keyMaterial), kdfSalt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, errors.Wrap(err, "could not derive metadata key")
	}
	return key, nil
}

// Encrypt seals the plaintext under a fresh random nonce and returns the
// value in its hex envelope form nonce:tag:body.
func (s *Sealer) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "could not generate nonce")
	}
	sealed := s.aead.Seal(nil, nonce, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagLength], sealed[len(sealed)-tagLength:]
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(body), nil
}

// Decrypt opens a value produced by Encrypt. Values that do not carry the
// envelope shape are returned unchanged, as are envelopes that fail to
// authenticate. Unencrypted rows written before a key was configured stay
// readable that way.
func (s *Sealer) Decrypt(value string) string {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return value
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != s.aead.NonceSize() {
		log.Debug("Value is not a sealed envelope, passing through")
		return value
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		log.Debug("Value is not a sealed envelope, passing through")
		return value
	}
	body, err := hex.DecodeString(parts[2])
	if err != nil {
		log.Debug("Value is not a sealed envelope, passing through")
		return value
	}
	plaintext, err := s.aead.Open(nil, nonce, append(body, tag...), nil)
	if err != nil {
		log.WithError(err).Warn("Could not authenticate sealed metadata field")
		return value
	}
	return string(plaintext)
}
