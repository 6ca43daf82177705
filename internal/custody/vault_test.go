package custody

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/solana"
)

type balanceRPC struct {
	lamports uint64
	tokens   uint64
}

func (r *balanceRPC) GetTransaction(context.Context, string) (*solana.Transaction, error) {
	return nil, nil
}

func (r *balanceRPC) GetSignaturesForAddress(context.Context, string, *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	return nil, nil
}

func (r *balanceRPC) GetBalance(context.Context, string) (uint64, error) {
	return r.lamports, nil
}

func (r *balanceRPC) GetTokenSupply(context.Context, string) (*solana.TokenAmount, error) {
	return nil, nil
}

func (r *balanceRPC) GetTokenBalance(context.Context, string, string) (uint64, error) {
	return r.tokens, nil
}

func (r *balanceRPC) SendTransaction(context.Context, string) (string, error) {
	return "", nil
}

func generateWallet(t *testing.T) (string, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base58.Encode(priv), pub
}

func TestVault_ImportWalletRoundTrip(t *testing.T) {
	v, err := NewVault("test-passphrase", &balanceRPC{})
	require.NoError(t, err)

	secretB58, pub := generateWallet(t)

	pubKey, blob, err := v.ImportWallet(secretB58)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(pub), pubKey)
	assert.NotEmpty(t, blob)
	assert.NotContains(t, string(blob), secretB58, "blob must not leak the secret")

	priv, err := v.decryptSecret(blob)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(priv), secretB58)
}

func TestVault_ImportWalletRejectsBadInput(t *testing.T) {
	v, err := NewVault("test-passphrase", &balanceRPC{})
	require.NoError(t, err)

	_, _, err = v.ImportWallet("not-base58-!!!")
	assert.Error(t, err)

	_, _, err = v.ImportWallet(base58.Encode([]byte("too short")))
	assert.Error(t, err)
}

func TestVault_WrongPassphrase(t *testing.T) {
	v1, err := NewVault("passphrase-one", &balanceRPC{})
	require.NoError(t, err)
	v2, err := NewVault("passphrase-two", &balanceRPC{})
	require.NoError(t, err)

	secretB58, _ := generateWallet(t)
	_, blob, err := v1.ImportWallet(secretB58)
	require.NoError(t, err)

	_, err = v2.decryptSecret(blob)
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestVault_EmptyPassphrase(t *testing.T) {
	_, err := NewVault("", &balanceRPC{})
	assert.Error(t, err)
}

func TestVault_SignerSignsFeePayerSlot(t *testing.T) {
	v, err := NewVault("test-passphrase", &balanceRPC{})
	require.NoError(t, err)

	secretB58, pub := generateWallet(t)
	pubKey, blob, err := v.ImportWallet(secretB58)
	require.NoError(t, err)

	signer, err := v.SignerFor(pubKey, blob)
	require.NoError(t, err)
	assert.Equal(t, pubKey, signer.PublicKey())

	// one signature slot followed by a message
	message := []byte("transaction message bytes")
	tx := make([]byte, 1+ed25519.SignatureSize+len(message))
	tx[0] = 1
	copy(tx[1+ed25519.SignatureSize:], message)

	signed, err := signer.Sign(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, signed, len(tx))

	sig := signed[1 : 1+ed25519.SignatureSize]
	assert.True(t, ed25519.Verify(pub, message, sig))
	assert.Equal(t, message, []byte(signed[1+ed25519.SignatureSize:]), "message untouched")
}

func TestVault_SignerRejectsMalformedTransaction(t *testing.T) {
	v, err := NewVault("test-passphrase", &balanceRPC{})
	require.NoError(t, err)

	secretB58, _ := generateWallet(t)
	pubKey, blob, err := v.ImportWallet(secretB58)
	require.NoError(t, err)

	signer, err := v.SignerFor(pubKey, blob)
	require.NoError(t, err)

	_, err = signer.Sign(context.Background(), nil)
	assert.Error(t, err)

	_, err = signer.Sign(context.Background(), []byte{0})
	assert.Error(t, err, "zero signature slots")

	_, err = signer.Sign(context.Background(), []byte{1, 2, 3})
	assert.Error(t, err, "truncated signature table")
}

func TestVault_SignerForRequiresWallet(t *testing.T) {
	v, err := NewVault("test-passphrase", &balanceRPC{})
	require.NoError(t, err)

	_, err = v.SignerFor("", nil)
	assert.Error(t, err)
}

func TestVault_GetBalance(t *testing.T) {
	v, err := NewVault("test-passphrase", &balanceRPC{lamports: 2_500_000_000})
	require.NoError(t, err)

	balance, err := v.GetBalance(context.Background(), "AnyPubKey")
	require.NoError(t, err)
	assert.Equal(t, 2.5, balance)
}

func TestVault_GetTokenBalance(t *testing.T) {
	v, err := NewVault("test-passphrase", &balanceRPC{tokens: 1_234_567})
	require.NoError(t, err)

	amount, err := v.GetTokenBalance(context.Background(), "AnyPubKey", "AnyMint")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_234_567), amount)
}
