// Package contract implements the split-bill gateway over an Ethereum node.
package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

// splitBillABI mirrors the deployed SplitBill contract surface.
const splitBillABI = `[
	{"type":"function","name":"createBill","stateMutability":"payable","inputs":[{"name":"_description","type":"string"},{"name":"_participants","type":"address[]"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"payShare","stateMutability":"payable","inputs":[{"name":"_billId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdrawFunds","stateMutability":"nonpayable","inputs":[{"name":"_billId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getBill","stateMutability":"view","inputs":[{"name":"_billId","type":"uint256"}],"outputs":[{"name":"creator","type":"address"},{"name":"description","type":"string"},{"name":"totalAmount","type":"uint256"},{"name":"amountPerPerson","type":"uint256"},{"name":"participants","type":"address[]"},{"name":"totalPaid","type":"uint256"},{"name":"isActive","type":"bool"}]},
	{"type":"function","name":"hasPaid","stateMutability":"view","inputs":[{"name":"_billId","type":"uint256"},{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allPaid","stateMutability":"view","inputs":[{"name":"_billId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"billCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"BillCreated","anonymous":false,"inputs":[{"name":"billId","type":"uint256","indexed":true},{"name":"creator","type":"address","indexed":true},{"name":"description","type":"string","indexed":false},{"name":"totalAmount","type":"uint256","indexed":false},{"name":"participantCount","type":"uint256","indexed":false}]}
]`

const (
	methodCreateBill  = "createBill"
	methodPayShare    = "payShare"
	methodWithdraw    = "withdrawFunds"
	methodGetBill     = "getBill"
	methodHasPaid     = "hasPaid"
	methodAllPaid     = "allPaid"
	methodBillCounter = "billCounter"
	eventBillCreated  = "BillCreated"
)

// Backend is the node RPC surface the gateway needs. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractCaller
	bind.ContractTransactor
	bind.ContractFilterer
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Gateway is the single point of contact with the deployed SplitBill
// contract: state reads plus state-mutating transactions. Write calls block
// until the transaction is mined.
type Gateway struct {
	backend  Backend
	contract *bind.BoundContract
	parsed   abi.ABI
	wallet   WalletProvider
	chainID  *big.Int
}

// New wires a Gateway against a deployed contract address.
func New(backend Backend, contractAddress string, wallet WalletProvider, chainID *big.Int) (*Gateway, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend dependency is nil", splitbill.ErrInvalidServiceConfig)
	}
	if wallet == nil {
		return nil, fmt.Errorf("%w: wallet dependency is nil", splitbill.ErrInvalidServiceConfig)
	}
	if chainID == nil {
		return nil, fmt.Errorf("%w: chain id is required", splitbill.ErrInvalidServiceConfig)
	}
	normalized, err := splitbill.NewAddress(contractAddress)
	if err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(splitBillABI))
	if err != nil {
		return nil, fmt.Errorf("%w: contract abi: %v", splitbill.ErrInvalidServiceConfig, err)
	}
	deployed := common.HexToAddress(normalized.String())
	return &Gateway{
		backend:  backend,
		contract: bind.NewBoundContract(deployed, parsed, backend, backend, backend),
		parsed:   parsed,
		wallet:   wallet,
		chainID:  chainID,
	}, nil
}

// Signer returns the address transactions are signed with.
func (gateway *Gateway) Signer() splitbill.Address {
	return gateway.wallet.Address()
}

// ChainID returns the chain the gateway is connected to.
func (gateway *Gateway) ChainID() *big.Int {
	return new(big.Int).Set(gateway.chainID)
}

// BillCount reads the total number of bills ever created.
func (gateway *Gateway) BillCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := gateway.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodBillCounter); err != nil {
		return 0, fmt.Errorf("%w: billCounter: %v", splitbill.ErrConnection, err)
	}
	counter := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return counter.Uint64(), nil
}

// GetBill reads one bill. Ids at or beyond the counter report ErrNotFound.
func (gateway *Gateway) GetBill(ctx context.Context, billID uint64) (splitbill.Bill, error) {
	billCount, err := gateway.BillCount(ctx)
	if err != nil {
		return splitbill.Bill{}, err
	}
	if billID >= billCount {
		return splitbill.Bill{}, fmt.Errorf("%w: bill %d", splitbill.ErrNotFound, billID)
	}
	var out []interface{}
	if err := gateway.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodGetBill, new(big.Int).SetUint64(billID)); err != nil {
		return splitbill.Bill{}, fmt.Errorf("%w: getBill: %v", splitbill.ErrConnection, err)
	}
	return billFromOutputs(billID, out)
}

// HasPaid reads whether the viewer's share has been recorded as paid.
func (gateway *Gateway) HasPaid(ctx context.Context, billID uint64, viewer splitbill.Address) (bool, error) {
	var out []interface{}
	err := gateway.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodHasPaid, new(big.Int).SetUint64(billID), common.HexToAddress(viewer.String()))
	if err != nil {
		return false, fmt.Errorf("%w: hasPaid: %v", splitbill.ErrConnection, err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// AllPaid reads whether every participant's share has been paid.
func (gateway *Gateway) AllPaid(ctx context.Context, billID uint64) (bool, error) {
	var out []interface{}
	if err := gateway.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodAllPaid, new(big.Int).SetUint64(billID)); err != nil {
		return false, fmt.Errorf("%w: allPaid: %v", splitbill.ErrConnection, err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// CreateBill submits the creation transaction with the total attached as
// value and returns the contract-assigned bill id from the BillCreated event.
func (gateway *Gateway) CreateBill(ctx context.Context, description string, participants []splitbill.Address, totalWei *big.Int) (uint64, string, error) {
	participantAddresses := make([]common.Address, 0, len(participants))
	for _, participant := range participants {
		participantAddresses = append(participantAddresses, common.HexToAddress(participant.String()))
	}
	receipt, txHash, err := gateway.transact(ctx, totalWei, methodCreateBill, description, participantAddresses)
	if err != nil {
		return 0, txHash, err
	}
	billID, err := gateway.billIDFromReceipt(receipt)
	if err != nil {
		return 0, txHash, err
	}
	return billID, txHash, nil
}

// PayShare submits the share payment with the given value attached.
func (gateway *Gateway) PayShare(ctx context.Context, billID uint64, amountWei *big.Int) (string, error) {
	_, txHash, err := gateway.transact(ctx, amountWei, methodPayShare, new(big.Int).SetUint64(billID))
	return txHash, err
}

// WithdrawFunds submits the creator withdrawal with no value attached.
func (gateway *Gateway) WithdrawFunds(ctx context.Context, billID uint64) (string, error) {
	_, txHash, err := gateway.transact(ctx, nil, methodWithdraw, new(big.Int).SetUint64(billID))
	return txHash, err
}

// transact submits one transaction and blocks until it is mined. A reverted
// submission or a failed receipt surfaces ErrTransactionFailed; provider
// trouble surfaces ErrConnection.
func (gateway *Gateway) transact(ctx context.Context, value *big.Int, method string, params ...interface{}) (*types.Receipt, string, error) {
	transactor, err := gateway.wallet.NewTransactor(ctx)
	if err != nil {
		return nil, "", err
	}
	transactor.Value = value
	transaction, err := gateway.contract.Transact(transactor, method, params...)
	if err != nil {
		return nil, "", classifySubmitError(method, err)
	}
	txHash := transaction.Hash().Hex()
	receipt, err := bind.WaitMined(ctx, gateway.backend, transaction)
	if err != nil {
		return nil, txHash, fmt.Errorf("%w: awaiting %s confirmation: %v", splitbill.ErrConnection, method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, txHash, fmt.Errorf("%w: %s reverted on-chain", splitbill.ErrTransactionFailed, method)
	}
	return receipt, txHash, nil
}

func classifySubmitError(method string, err error) error {
	if reason := revertReason(err); reason != "" {
		return fmt.Errorf("%w: %s: %s", splitbill.ErrTransactionFailed, method, reason)
	}
	if isReverted(err) {
		return fmt.Errorf("%w: %s: %v", splitbill.ErrTransactionFailed, method, err)
	}
	return fmt.Errorf("%w: %s: %v", splitbill.ErrConnection, method, err)
}

// billIDFromReceipt extracts the assigned bill id from the BillCreated log.
func (gateway *Gateway) billIDFromReceipt(receipt *types.Receipt) (uint64, error) {
	eventID := gateway.parsed.Events[eventBillCreated].ID
	for _, logEntry := range receipt.Logs {
		if len(logEntry.Topics) < 2 || logEntry.Topics[0] != eventID {
			continue
		}
		return new(big.Int).SetBytes(logEntry.Topics[1].Bytes()).Uint64(), nil
	}
	return 0, fmt.Errorf("%w: receipt carries no BillCreated event", splitbill.ErrTransactionFailed)
}

func billFromOutputs(billID uint64, out []interface{}) (splitbill.Bill, error) {
	if len(out) != 7 {
		return splitbill.Bill{}, fmt.Errorf("%w: getBill returned %d values", splitbill.ErrInvalidBill, len(out))
	}
	creatorRaw := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	description := *abi.ConvertType(out[1], new(string)).(*string)
	totalAmount := *abi.ConvertType(out[2], new(*big.Int)).(**big.Int)
	amountPerPerson := *abi.ConvertType(out[3], new(*big.Int)).(**big.Int)
	participantsRaw := *abi.ConvertType(out[4], new([]common.Address)).(*[]common.Address)
	totalPaid := *abi.ConvertType(out[5], new(*big.Int)).(**big.Int)
	isActive := *abi.ConvertType(out[6], new(bool)).(*bool)

	creator, err := splitbill.NewAddress(creatorRaw.Hex())
	if err != nil {
		return splitbill.Bill{}, err
	}
	participants := make([]splitbill.Address, 0, len(participantsRaw))
	for _, participantRaw := range participantsRaw {
		participant, err := splitbill.NewAddress(participantRaw.Hex())
		if err != nil {
			return splitbill.Bill{}, err
		}
		participants = append(participants, participant)
	}
	return splitbill.NewBill(billID, creator, description, totalAmount, amountPerPerson, participants, totalPaid, isActive)
}
