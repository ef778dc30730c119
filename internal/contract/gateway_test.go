package contract

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

const (
	testPrivateKeyHex  = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testContractHex    = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	testCreatorHex     = "0x1111111111111111111111111111111111111111"
	testParticipantHex = "0x2222222222222222222222222222222222222222"
)

var testChainID = big.NewInt(31337)

// fakeBillState is the on-chain bill record the fake backend serves.
type fakeBillState struct {
	creator         common.Address
	description     string
	totalAmount     *big.Int
	amountPerPerson *big.Int
	participants    []common.Address
	totalPaid       *big.Int
	isActive        bool
}

// fakeBackend answers contract calls from in-memory state and confirms every
// submitted transaction immediately.
type fakeBackend struct {
	mutex sync.Mutex

	parsed      abi.ABI
	billCounter *big.Int
	bills       map[uint64]fakeBillState
	paid        map[uint64]map[common.Address]bool

	sendErr      error
	receiptLogs  []*types.Log
	receiptFail  bool
	sentTxs      []*types.Transaction
	lastTxValue  *big.Int
	lastCallData []byte
}

func newFakeBackend(test *testing.T) *fakeBackend {
	test.Helper()
	parsed, err := abi.JSON(strings.NewReader(splitBillABI))
	if err != nil {
		test.Fatalf("parse abi: %v", err)
	}
	return &fakeBackend{
		parsed:      parsed,
		billCounter: big.NewInt(0),
		bills:       map[uint64]fakeBillState{},
		paid:        map[uint64]map[common.Address]bool{},
	}
}

func (backend *fakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (backend *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x01}, nil
}

func (backend *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.lastCallData = call.Data

	method, err := backend.parsed.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	arguments, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case methodBillCounter:
		return method.Outputs.Pack(backend.billCounter)
	case methodGetBill:
		billID := arguments[0].(*big.Int).Uint64()
		bill, ok := backend.bills[billID]
		if !ok {
			return nil, errors.New("execution reverted: Bill does not exist")
		}
		return method.Outputs.Pack(bill.creator, bill.description, bill.totalAmount, bill.amountPerPerson, bill.participants, bill.totalPaid, bill.isActive)
	case methodHasPaid:
		billID := arguments[0].(*big.Int).Uint64()
		user := arguments[1].(common.Address)
		return method.Outputs.Pack(backend.paid[billID][user])
	case methodAllPaid:
		billID := arguments[0].(*big.Int).Uint64()
		bill := backend.bills[billID]
		for _, participant := range bill.participants {
			if !backend.paid[billID][participant] {
				return method.Outputs.Pack(false)
			}
		}
		return method.Outputs.Pack(true)
	default:
		return nil, errors.New("unexpected call " + method.Name)
	}
}

func (backend *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (backend *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (backend *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (backend *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 120_000, nil
}

func (backend *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{}, nil
}

func (backend *fakeBackend) SendTransaction(ctx context.Context, transaction *types.Transaction) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	if backend.sendErr != nil {
		return backend.sendErr
	}
	backend.sentTxs = append(backend.sentTxs, transaction)
	backend.lastTxValue = transaction.Value()
	return nil
}

func (backend *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	status := types.ReceiptStatusSuccessful
	if backend.receiptFail {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{Status: status, TxHash: txHash, Logs: backend.receiptLogs}, nil
}

func (backend *fakeBackend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (backend *fakeBackend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, sink chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions are not supported")
}

func mustGateway(test *testing.T, backend *fakeBackend) *Gateway {
	test.Helper()
	wallet, err := NewKeyedWallet(testPrivateKeyHex, testChainID)
	if err != nil {
		test.Fatalf("wallet: %v", err)
	}
	gateway, err := New(backend, testContractHex, wallet, testChainID)
	if err != nil {
		test.Fatalf("gateway: %v", err)
	}
	return gateway
}

func seedBill(backend *fakeBackend, billID uint64, bill fakeBillState) {
	backend.bills[billID] = bill
	if backend.paid[billID] == nil {
		backend.paid[billID] = map[common.Address]bool{}
	}
	if next := billID + 1; next > backend.billCounter.Uint64() {
		backend.billCounter = new(big.Int).SetUint64(next)
	}
}

func TestGetBillMapsContractOutputs(test *testing.T) {
	test.Parallel()
	backend := newFakeBackend(test)
	seedBill(backend, 0, fakeBillState{
		creator:         common.HexToAddress(testCreatorHex),
		description:     "Team dinner",
		totalAmount:     big.NewInt(1_000_000),
		amountPerPerson: big.NewInt(500_000),
		participants:    []common.Address{common.HexToAddress(testCreatorHex), common.HexToAddress(testParticipantHex)},
		totalPaid:       big.NewInt(500_000),
		isActive:        true,
	})
	gateway := mustGateway(test, backend)

	bill, err := gateway.GetBill(context.Background(), 0)
	if err != nil {
		test.Fatalf("get bill: %v", err)
	}
	if bill.ID != 0 || bill.Description != "Team dinner" {
		test.Fatalf("unexpected bill identity: %+v", bill)
	}
	if bill.Creator.String() != testCreatorHex {
		test.Fatalf("expected normalized creator, got %q", bill.Creator.String())
	}
	if len(bill.Participants) != 2 {
		test.Fatalf("expected 2 participants, got %d", len(bill.Participants))
	}
	if bill.TotalPaid.Cmp(big.NewInt(500_000)) != 0 {
		test.Fatalf("expected totalPaid 500000, got %s", bill.TotalPaid)
	}
	if !bill.IsActive {
		test.Fatal("expected active bill")
	}
}

func TestGetBillBeyondCounterIsNotFound(test *testing.T) {
	test.Parallel()
	backend := newFakeBackend(test)
	seedBill(backend, 0, fakeBillState{
		creator:         common.HexToAddress(testCreatorHex),
		totalAmount:     big.NewInt(10),
		amountPerPerson: big.NewInt(10),
		participants:    []common.Address{common.HexToAddress(testParticipantHex)},
		totalPaid:       big.NewInt(0),
		isActive:        true,
	})
	gateway := mustGateway(test, backend)

	_, err := gateway.GetBill(context.Background(), 5)
	if !errors.Is(err, splitbill.ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHasPaidReadsContractState(test *testing.T) {
	test.Parallel()
	backend := newFakeBackend(test)
	seedBill(backend, 0, fakeBillState{
		creator:         common.HexToAddress(testCreatorHex),
		totalAmount:     big.NewInt(10),
		amountPerPerson: big.NewInt(5),
		participants:    []common.Address{common.HexToAddress(testParticipantHex)},
		totalPaid:       big.NewInt(5),
		isActive:        true,
	})
	backend.paid[0][common.HexToAddress(testParticipantHex)] = true
	gateway := mustGateway(test, backend)

	viewer, err := splitbill.NewAddress(testParticipantHex)
	if err != nil {
		test.Fatalf("address: %v", err)
	}
	paid, err := gateway.HasPaid(context.Background(), 0, viewer)
	if err != nil {
		test.Fatalf("has paid: %v", err)
	}
	if !paid {
		test.Fatal("expected viewer to be marked paid")
	}
	allPaid, err := gateway.AllPaid(context.Background(), 0)
	if err != nil {
		test.Fatalf("all paid: %v", err)
	}
	if !allPaid {
		test.Fatal("expected all shares settled")
	}
}

func TestCreateBillConfirmsAndReadsEventID(test *testing.T) {
	test.Parallel()
	backend := newFakeBackend(test)
	gateway := mustGateway(test, backend)
	backend.receiptLogs = []*types.Log{{
		Topics: []common.Hash{
			backend.parsed.Events[eventBillCreated].ID,
			common.BigToHash(big.NewInt(3)),
			common.HexToHash(testCreatorHex),
		},
	}}

	participant, err := splitbill.NewAddress(testParticipantHex)
	if err != nil {
		test.Fatalf("address: %v", err)
	}
	totalWei := big.NewInt(1_000_000_000_000_000_000)
	billID, txHash, err := gateway.CreateBill(context.Background(), "Road trip", []splitbill.Address{participant}, totalWei)
	if err != nil {
		test.Fatalf("create bill: %v", err)
	}
	if billID != 3 {
		test.Fatalf("expected bill id 3 from event, got %d", billID)
	}
	if txHash == "" {
		test.Fatal("expected a transaction hash")
	}
	if backend.lastTxValue == nil || backend.lastTxValue.Cmp(totalWei) != 0 {
		test.Fatalf("expected total attached as value, got %v", backend.lastTxValue)
	}
}

func TestCreateBillWithoutEventFails(test *testing.T) {
	test.Parallel()
	backend := newFakeBackend(test)
	gateway := mustGateway(test, backend)

	participant, err := splitbill.NewAddress(testParticipantHex)
	if err != nil {
		test.Fatalf("address: %v", err)
	}
	_, _, err = gateway.CreateBill(context.Background(), "Road trip", []splitbill.Address{participant}, big.NewInt(1))
	if !errors.Is(err, splitbill.ErrTransactionFailed) {
		test.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
}

func TestPayShareSurfacesRevertReason(test *testing.T) {
	test.Parallel()
	backend := newFakeBackend(test)
	backend.sendErr = fakeRPCError{
		message: "execution reverted",
		data:    encodeRevertPayload(test, "Must pay exact share amount"),
	}
	gateway := mustGateway(test, backend)

	_, err := gateway.PayShare(context.Background(), 0, big.NewInt(7))
	if !errors.Is(err, splitbill.ErrTransactionFailed) {
		test.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Must pay exact share amount") {
		test.Fatalf("expected revert reason in error, got %v", err)
	}
}

func TestPayShareConnectionTroubleIsNotARevert(test *testing.T) {
	test.Parallel()
	backend := newFakeBackend(test)
	backend.sendErr = errors.New("dial tcp 127.0.0.1:8545: connection refused")
	gateway := mustGateway(test, backend)

	_, err := gateway.PayShare(context.Background(), 0, big.NewInt(7))
	if !errors.Is(err, splitbill.ErrConnection) {
		test.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestWithdrawFailedReceiptSurfacesFailure(test *testing.T) {
	test.Parallel()
	backend := newFakeBackend(test)
	backend.receiptFail = true
	gateway := mustGateway(test, backend)

	_, err := gateway.WithdrawFunds(context.Background(), 0)
	if !errors.Is(err, splitbill.ErrTransactionFailed) {
		test.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
}
