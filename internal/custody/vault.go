package custody

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/pbkdf2"

	"solana-copy-trader/internal/aggregator"
	"solana-copy-trader/internal/solana"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the encrypted-secret schema version.
	currentVersion = 1

	lamportsPerSOL = 1_000_000_000
)

// ErrWrongPassphrase is returned when a blob fails authenticated decryption.
var ErrWrongPassphrase = errors.New("custody: decryption failed (wrong passphrase?)")

// encryptedSecretJSON is the stored format for an encrypted signing key.
type encryptedSecretJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// Vault implements Provider. One master passphrase protects all user
// secrets; each blob carries its own random salt and nonce.
type Vault struct {
	passphrase string
	rpc        solana.RPCClient
}

// NewVault creates a vault. The passphrase must be non-empty; a vault with
// an empty passphrase would silently produce undecryptable blobs.
func NewVault(passphrase string, rpc solana.RPCClient) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("custody: passphrase must not be empty")
	}
	return &Vault{passphrase: passphrase, rpc: rpc}, nil
}

// Compile-time interface check.
var _ Provider = (*Vault)(nil)

// ImportWallet validates a base58-encoded ed25519 secret key, encrypts it,
// and returns the wallet public key with the encrypted blob.
func (v *Vault) ImportWallet(secretBase58 string) (publicKey string, blob []byte, err error) {
	secret, err := base58.Decode(secretBase58)
	if err != nil {
		return "", nil, fmt.Errorf("custody: invalid secret key encoding: %w", err)
	}
	if len(secret) != ed25519.PrivateKeySize {
		return "", nil, fmt.Errorf("custody: expected %d-byte secret key, got %d bytes",
			ed25519.PrivateKeySize, len(secret))
	}

	priv := ed25519.PrivateKey(secret)
	pub := priv.Public().(ed25519.PublicKey)

	// The public key must be a valid curve point, otherwise the chain
	// rejects everything signed with it.
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return "", nil, fmt.Errorf("custody: public key is not on the curve: %w", err)
	}

	blob, err = v.encryptSecret(secret)
	if err != nil {
		return "", nil, err
	}
	return base58.Encode(pub), blob, nil
}

// GetBalance returns the wallet's balance in SOL.
func (v *Vault) GetBalance(ctx context.Context, walletPublicKey string) (float64, error) {
	lamports, err := v.rpc.GetBalance(ctx, walletPublicKey)
	if err != nil {
		return 0, fmt.Errorf("custody: get balance: %w", err)
	}
	return float64(lamports) / lamportsPerSOL, nil
}

// GetTokenBalance returns the wallet's holdings of a mint in raw base units.
func (v *Vault) GetTokenBalance(ctx context.Context, walletPublicKey, mint string) (uint64, error) {
	amount, err := v.rpc.GetTokenBalance(ctx, walletPublicKey, mint)
	if err != nil {
		return 0, fmt.Errorf("custody: get token balance: %w", err)
	}
	return amount, nil
}

// SignerFor returns a signer bound to a user's encrypted secret. Decryption
// is deferred to the signing call.
func (v *Vault) SignerFor(walletPublicKey string, encryptedSecret []byte) (aggregator.Signer, error) {
	if walletPublicKey == "" || len(encryptedSecret) == 0 {
		return nil, errors.New("custody: no wallet linked")
	}
	return &vaultSigner{vault: v, publicKey: walletPublicKey, blob: encryptedSecret}, nil
}

// encryptSecret encrypts key material with a key derived from the vault
// passphrase via PBKDF2-HMAC-SHA256, sealed with AES-256-GCM.
func (v *Vault) encryptSecret(secret []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("custody: generating salt: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(v.passphrase), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("custody: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("custody: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("custody: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, secret, nil)

	return json.Marshal(encryptedSecretJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
}

// decryptSecret reverses encryptSecret.
func (v *Vault) decryptSecret(blob []byte) (ed25519.PrivateKey, error) {
	var stored encryptedSecretJSON
	if err := json.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("custody: parsing encrypted secret: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("custody: unsupported secret version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("custody: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("custody: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("custody: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(v.passphrase), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("custody: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("custody: creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	if len(plaintext) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("custody: decrypted secret has wrong length %d", len(plaintext))
	}
	return ed25519.PrivateKey(plaintext), nil
}

// vaultSigner signs serialized Solana transactions with a vault-held key.
type vaultSigner struct {
	vault     *Vault
	publicKey string
	blob      []byte
}

// PublicKey returns the signer's base58 public key.
func (s *vaultSigner) PublicKey() string {
	return s.publicKey
}

// Sign decrypts the key, signs the transaction's message section, and writes
// the signature into the fee payer's slot.
func (s *vaultSigner) Sign(ctx context.Context, txBlob []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	priv, err := s.vault.decryptSecret(s.blob)
	if err != nil {
		return nil, err
	}

	signed, err := signTransaction(txBlob, priv)
	// Drop key material before returning.
	for i := range priv {
		priv[i] = 0
	}
	if err != nil {
		return nil, err
	}
	return signed, nil
}

// signTransaction signs a serialized Solana transaction in place. Layout:
// a shortvec count of signatures, the 64-byte signature slots, then the
// message. The fee payer's signature is slot zero.
func signTransaction(txBlob []byte, priv ed25519.PrivateKey) ([]byte, error) {
	if len(txBlob) == 0 {
		return nil, errors.New("custody: empty transaction")
	}

	numSigs, offset, err := decodeShortvecLen(txBlob)
	if err != nil {
		return nil, err
	}
	if numSigs == 0 {
		return nil, errors.New("custody: transaction reserves no signature slots")
	}

	msgStart := offset + numSigs*ed25519.SignatureSize
	if msgStart >= len(txBlob) {
		return nil, errors.New("custody: transaction shorter than its signature table")
	}

	out := make([]byte, len(txBlob))
	copy(out, txBlob)

	sig := ed25519.Sign(priv, out[msgStart:])
	copy(out[offset:], sig)
	return out, nil
}

// decodeShortvecLen decodes a Solana compact-u16 length prefix.
func decodeShortvecLen(data []byte) (length, bytesRead int, err error) {
	for i := 0; i < 3 && i < len(data); i++ {
		b := data[i]
		length |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return length, i + 1, nil
		}
	}
	return 0, 0, errors.New("custody: malformed length prefix")
}
