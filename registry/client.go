package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ruteri/credential-registry-backend/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted without first setting transaction options.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// OnchainCredentialRegistry implements interfaces.CredentialRegistry against
// the credential registry contract.
type OnchainCredentialRegistry struct {
	contract *bind.BoundContract
	abi      abi.ABI
	client   bind.ContractBackend
	backend  bind.DeployBackend
	address  common.Address
	auth     *bind.TransactOpts
	log      *slog.Logger
}

// NewOnchainCredentialRegistry binds the contract at address. It requires a
// ContractBackend for calls and transactions and a DeployBackend for waiting
// on receipts.
func NewOnchainCredentialRegistry(client bind.ContractBackend, backend bind.DeployBackend, address common.Address, log *slog.Logger) (*OnchainCredentialRegistry, error) {
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	return &OnchainCredentialRegistry{
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		abi:      parsed,
		client:   client,
		backend:  backend,
		address:  address,
		log:      log.With("component", "registry", "contract", address.Hex()),
	}, nil
}

// SetTransactOpts sets the signer used by Register.
func (c *OnchainCredentialRegistry) SetTransactOpts(auth *bind.TransactOpts) {
	c.auth = auth
}

// Address returns the bound contract address.
func (c *OnchainCredentialRegistry) Address() common.Address {
	return c.address
}

// Register writes (contentHash, metadataHash, locator) and waits for the
// transaction to be mined.
func (c *OnchainCredentialRegistry) Register(ctx context.Context, contentHash, metadataHash interfaces.Digest, locator interfaces.Locator) (interfaces.TransactionID, error) {
	if c.auth == nil {
		return "", ErrNoTransactOpts
	}

	_, err := c.LookupByContentHash(ctx, contentHash)
	switch {
	case err == nil:
		return "", fmt.Errorf("%w: %s", interfaces.ErrAlreadyRegistered, contentHash)
	case !errors.Is(err, interfaces.ErrRecordNotFound):
		return "", err
	}

	opts := *c.auth
	opts.Context = ctx
	opts.NoSend = true
	tx, err := c.contract.Transact(&opts, methodIssue, [32]byte(contentHash), [32]byte(metadataHash), locator.String())
	if err != nil {
		if isRevert(err) {
			return "", c.classifyRevert(ctx, contentHash, "", err)
		}
		return "", fmt.Errorf("%w: failed to prepare registry transaction: %v", interfaces.ErrBackendUnavailable, err)
	}

	txID := interfaces.TransactionID(tx.Hash().Hex())
	if err := c.client.SendTransaction(ctx, tx); err != nil {
		if sendRejected(err) {
			return "", fmt.Errorf("%w: node rejected registry transaction %s: %v", interfaces.ErrBackendUnavailable, txID, err)
		}
		return txID, fmt.Errorf("%w: transaction %s may have been sent: %v", interfaces.ErrOutcomeUnknown, txID, err)
	}
	c.log.Debug("registry transaction sent", "tx", txID, "fileHash", contentHash.String())

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return txID, fmt.Errorf("%w: transaction %s sent but not observed: %v", interfaces.ErrOutcomeUnknown, txID, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txID, c.classifyRevert(ctx, contentHash, txID, errors.New("transaction reverted"))
	}

	if credID, err := c.credentialIDFromReceipt(receipt); err == nil {
		c.log.Info("credential registered", "tx", txID, "credId", credID, "block", receipt.BlockNumber)
	} else {
		c.log.Info("credential registered", "tx", txID, "block", receipt.BlockNumber)
	}
	return txID, nil
}

// LookupByContentHash returns the record registered for a file hash.
func (c *OnchainCredentialRegistry) LookupByContentHash(ctx context.Context, contentHash interfaces.Digest) (*interfaces.VerificationRecord, error) {
	return c.lookup(ctx, methodByFileHash, contentHash)
}

// LookupByMetadataHash returns the record registered for a metadata hash.
func (c *OnchainCredentialRegistry) LookupByMetadataHash(ctx context.Context, metadataHash interfaces.Digest) (*interfaces.VerificationRecord, error) {
	return c.lookup(ctx, methodByJsonHash, metadataHash)
}

func (c *OnchainCredentialRegistry) lookup(ctx context.Context, method string, key interfaces.Digest) (*interfaces.VerificationRecord, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, [32]byte(key))
	if err != nil {
		switch {
		case errors.Is(err, bind.ErrNoCode):
			return nil, fmt.Errorf("%w: no contract code at %s", interfaces.ErrBackendUnavailable, c.address.Hex())
		case isRevert(err):
			return nil, fmt.Errorf("%w: %s", interfaces.ErrRecordNotFound, key)
		default:
			return nil, fmt.Errorf("%w: registry call %s failed: %v", interfaces.ErrBackendUnavailable, method, err)
		}
	}

	record, err := recordFromOutputs(out)
	if err != nil {
		return nil, err
	}
	if record.Timestamp == 0 {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrRecordNotFound, key)
	}
	return record, nil
}

func recordFromOutputs(out []interface{}) (*interfaces.VerificationRecord, error) {
	if len(out) != 6 {
		return nil, fmt.Errorf("%w: unexpected registry output arity %d", interfaces.ErrExternalUnavailable, len(out))
	}

	credID, ok1 := out[0].(*big.Int)
	issuer, ok2 := out[1].(common.Address)
	fileHash, ok3 := out[2].([32]byte)
	jsonHash, ok4 := out[3].([32]byte)
	cid, ok5 := out[4].(string)
	timestamp, ok6 := out[5].(*big.Int)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return nil, fmt.Errorf("%w: unexpected registry output types", interfaces.ErrExternalUnavailable)
	}
	if !timestamp.IsInt64() {
		return nil, fmt.Errorf("%w: registry timestamp out of range", interfaces.ErrExternalUnavailable)
	}

	return &interfaces.VerificationRecord{
		CredentialID: credID.String(),
		Issuer:       issuer.Hex(),
		ContentHash:  interfaces.Digest(fileHash),
		MetadataHash: interfaces.Digest(jsonHash),
		Locator:      interfaces.Locator(cid),
		Timestamp:    timestamp.Int64(),
	}, nil
}

type credentialIssuedEvent struct {
	CredId   *big.Int
	Issuer   common.Address
	FileHash [32]byte
	JsonHash [32]byte
	Cid      string
}

func (c *OnchainCredentialRegistry) credentialIDFromReceipt(receipt *types.Receipt) (string, error) {
	eventID := c.abi.Events[eventCredentialIssue].ID
	for _, l := range receipt.Logs {
		if l == nil || len(l.Topics) == 0 || l.Topics[0] != eventID {
			continue
		}
		var ev credentialIssuedEvent
		if err := c.contract.UnpackLog(&ev, eventCredentialIssue, *l); err != nil {
			return "", err
		}
		return ev.CredId.String(), nil
	}
	return "", errors.New("no CredentialIssued event in receipt")
}

// classifyRevert reports a revert as a duplicate only once the registry
// confirms the content hash is taken. Any other revert is a rejection.
func (c *OnchainCredentialRegistry) classifyRevert(ctx context.Context, contentHash interfaces.Digest, txID interfaces.TransactionID, cause error) error {
	_, err := c.LookupByContentHash(ctx, contentHash)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", interfaces.ErrAlreadyRegistered, contentHash)
	case errors.Is(err, interfaces.ErrRecordNotFound):
		return fmt.Errorf("%w: registry rejected credential %s (tx %q): %v", interfaces.ErrExternalUnavailable, contentHash, txID, cause)
	default:
		return fmt.Errorf("%w: registry rejected credential %s (tx %q): %v; confirming lookup failed: %v",
			interfaces.ErrExternalUnavailable, contentHash, txID, cause, err)
	}
}

// sendRejected reports whether the node answered SendTransaction with an
// explicit error. Transport failures and timeouts leave the outcome open, as
// does a node that already holds the transaction.
func sendRejected(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	return !strings.Contains(strings.ToLower(rpcErr.Error()), "already known")
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
