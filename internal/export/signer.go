package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Signer produces ASCII-armored OpenPGP detached signatures
type Signer struct {
	entity *openpgp.Entity
}

// LoadSigner reads an armored private key from path, decrypting it with passphrase when
// the key is protected.
func LoadSigner(path, passphrase string) (*Signer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open signing key: %w", err)
	}
	defer f.Close()
	return NewSigner(f, passphrase)
}

// NewSigner parses the first private key in an armored key ring
func NewSigner(armored io.Reader, passphrase string) (*Signer, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(armored)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	for _, entity := range keyring {
		if entity.PrivateKey == nil {
			continue
		}
		if err := decrypt(entity, []byte(passphrase)); err != nil {
			return nil, err
		}
		return &Signer{entity: entity}, nil
	}
	return nil, errors.New("signing key ring contains no private key")
}

func decrypt(entity *openpgp.Entity, passphrase []byte) error {
	if entity.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return errors.New("signing key is encrypted and no passphrase is configured")
		}
		if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
			return fmt.Errorf("failed to decrypt signing key: %w", err)
		}
	}
	for _, sub := range entity.Subkeys {
		if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
			if err := sub.PrivateKey.Decrypt(passphrase); err != nil {
				return fmt.Errorf("failed to decrypt signing subkey: %w", err)
			}
		}
	}
	return nil
}

// KeyID returns the signing key id in hex
func (s *Signer) KeyID() string {
	return s.entity.PrimaryKey.KeyIdString()
}

// Sign returns an armored detached signature over data
func (s *Signer) Sign(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, s.entity, bytes.NewReader(data), nil); err != nil {
		return nil, fmt.Errorf("failed to sign export: %w", err)
	}
	return buf.Bytes(), nil
}
