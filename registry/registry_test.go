package registry

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func digest(b byte) interfaces.Digest {
	var d interfaces.Digest
	for i := range d {
		d[i] = b
	}
	return d
}

func TestOnchainRegistry_NoContractCode(t *testing.T) {
	backend, auth, _, err := SetupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	reg, err := NewOnchainCredentialRegistry(backend.Client(), backend.Client(), common.HexToAddress("0x00000000000000000000000000000000000000c0"), discardLogger)
	require.NoError(t, err)

	_, err = reg.LookupByContentHash(context.Background(), digest(1))
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	_, err = reg.LookupByMetadataHash(context.Background(), digest(1))
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	reg.SetTransactOpts(auth)
	_, err = reg.Register(context.Background(), digest(1), digest(2), "ipfs://cid")
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}

func TestOnchainRegistry_RegisterRequiresTransactOpts(t *testing.T) {
	backend, _, _, err := SetupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	reg, err := NewOnchainCredentialRegistry(backend.Client(), backend.Client(), common.Address{}, discardLogger)
	require.NoError(t, err)

	_, err = reg.Register(context.Background(), digest(1), digest(2), "ipfs://cid")
	assert.ErrorIs(t, err, ErrNoTransactOpts)
}

func TestRecordFromOutputs(t *testing.T) {
	parsed, err := ParseABI()
	require.NoError(t, err)

	issuer := common.HexToAddress("0x1111111111111111111111111111111111111111")
	fileHash, jsonHash := digest(0xaa), digest(0xbb)

	for _, method := range []string{methodByFileHash, methodByJsonHash} {
		t.Run(method, func(t *testing.T) {
			data, err := parsed.Methods[method].Outputs.Pack(
				big.NewInt(7), issuer, [32]byte(fileHash), [32]byte(jsonHash), "ipfs://bafy", big.NewInt(1700000000))
			require.NoError(t, err)

			out, err := parsed.Unpack(method, data)
			require.NoError(t, err)

			record, err := recordFromOutputs(out)
			require.NoError(t, err)
			assert.Equal(t, "7", record.CredentialID)
			assert.Equal(t, issuer.Hex(), record.Issuer)
			assert.Equal(t, fileHash, record.ContentHash)
			assert.Equal(t, jsonHash, record.MetadataHash)
			assert.Equal(t, interfaces.Locator("ipfs://bafy"), record.Locator)
			assert.Equal(t, int64(1700000000), record.Timestamp)
		})
	}

	_, err = recordFromOutputs([]interface{}{big.NewInt(1)})
	assert.ErrorIs(t, err, interfaces.ErrExternalUnavailable)
}

func TestIssueCredentialPack(t *testing.T) {
	parsed, err := ParseABI()
	require.NoError(t, err)

	data, err := parsed.Pack(methodIssue, [32]byte(digest(1)), [32]byte(digest(2)), "file:///tmp/x")
	require.NoError(t, err)
	assert.Equal(t, parsed.Methods[methodIssue].ID, data[:4])
	// selector, two words, offset, length, one padded word of string data
	assert.Len(t, data, 4+32*5)
}

func TestCredentialIDFromReceipt(t *testing.T) {
	backend, _, _, err := SetupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	reg, err := NewOnchainCredentialRegistry(backend.Client(), backend.Client(), common.Address{}, discardLogger)
	require.NoError(t, err)

	event := reg.abi.Events[eventCredentialIssue]
	data, err := event.Inputs.NonIndexed().Pack([32]byte(digest(3)), [32]byte(digest(4)), "ipfs://bafy")
	require.NoError(t, err)

	issuer := common.HexToAddress("0x2222222222222222222222222222222222222222")
	log := &types.Log{
		Topics: []common.Hash{event.ID, common.BigToHash(big.NewInt(42)), common.BytesToHash(issuer.Bytes())},
		Data:   data,
	}

	credID, err := reg.credentialIDFromReceipt(&types.Receipt{Logs: []*types.Log{log}})
	require.NoError(t, err)
	assert.Equal(t, "42", credID)

	_, err = reg.credentialIDFromReceipt(&types.Receipt{})
	assert.Error(t, err)
}

func TestMemoryRegistry_WriteOnce(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry("0xissuer")

	txID, err := reg.Register(ctx, digest(1), digest(2), "file:///data/ciphertext/01")
	require.NoError(t, err)
	assert.NotEmpty(t, txID)

	record, err := reg.LookupByContentHash(ctx, digest(1))
	require.NoError(t, err)
	assert.Equal(t, "1", record.CredentialID)
	assert.Equal(t, "0xissuer", record.Issuer)
	assert.Equal(t, digest(2), record.MetadataHash)
	assert.NotZero(t, record.Timestamp)

	byMeta, err := reg.LookupByMetadataHash(ctx, digest(2))
	require.NoError(t, err)
	assert.Equal(t, record, byMeta)

	_, err = reg.Register(ctx, digest(1), digest(9), "other")
	assert.ErrorIs(t, err, interfaces.ErrAlreadyRegistered)

	again, err := reg.LookupByContentHash(ctx, digest(1))
	require.NoError(t, err)
	assert.Equal(t, digest(2), again.MetadataHash, "duplicate write must not change the record")
	assert.Equal(t, 1, reg.Len())
}

func TestMemoryRegistry_NotFoundAndFailures(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry("0xissuer")

	_, err := reg.LookupByContentHash(ctx, digest(5))
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	reg.RegisterErr = interfaces.ErrOutcomeUnknown
	_, err = reg.Register(ctx, digest(5), digest(6), "x")
	assert.ErrorIs(t, err, interfaces.ErrOutcomeUnknown)
	assert.Equal(t, 0, reg.Len())

	reg.RegisterErr = nil
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = reg.Register(cancelled, digest(5), digest(6), "x")
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	assert.Equal(t, 0, reg.Len())

	reg.LookupErr = interfaces.ErrBackendUnavailable
	_, err = reg.LookupByMetadataHash(ctx, digest(6))
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}

// SetupTestChain creates a simulated backend with a funded test account.
func SetupTestChain() (*simulated.Backend, *bind.TransactOpts, *ecdsa.PrivateKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, nil, err
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, big.NewInt(1337))
	if err != nil {
		return nil, nil, nil, err
	}

	balance := new(big.Int)
	balance.SetString("10000000000000000000", 10) // 10 ETH

	genesisAlloc := map[common.Address]types.Account{
		auth.From: {
			Balance: balance,
		},
	}

	blockGasLimit := uint64(8000000)
	backend := simulated.NewBackend(genesisAlloc, simulated.WithBlockGasLimit(blockGasLimit))

	return backend, auth, privateKey, nil
}
