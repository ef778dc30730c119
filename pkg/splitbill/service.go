package splitbill

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// Gateway is the single point of contact with the split-bill contract.
//
// Write operations submit a transaction and block until the network confirms
// inclusion; the returned hash always refers to a mined transaction. Rejected
// or reverted submissions surface ErrTransactionFailed with the revert reason
// when the provider exposes one.
type Gateway interface {
	Signer() Address
	BillCount(ctx context.Context) (uint64, error)
	GetBill(ctx context.Context, billID uint64) (Bill, error)
	HasPaid(ctx context.Context, billID uint64, viewer Address) (bool, error)
	AllPaid(ctx context.Context, billID uint64) (bool, error)
	CreateBill(ctx context.Context, description string, participants []Address, totalWei *big.Int) (uint64, string, error)
	PayShare(ctx context.Context, billID uint64, amountWei *big.Int) (string, error)
	WithdrawFunds(ctx context.Context, billID uint64) (string, error)
}

// Journal persists transaction submissions for the activity history view.
type Journal interface {
	Append(ctx context.Context, record TransactionRecord) error
	MarkResult(ctx context.Context, recordID string, status TxStatus, txHash string, billID uint64) error
	ListBySender(ctx context.Context, sender Address, limit int) ([]TransactionRecord, error)
}

const defaultHistoryLimit = 50

// Service contains the bill lifecycle logic over a Gateway and a Journal.
type Service struct {
	gateway Gateway
	journal Journal
	nowFn   func() int64
	logger  OperationLogger
}

// NewService wires a Service.
func NewService(gateway Gateway, journal Journal, now func() int64, options ...ServiceOption) (*Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if journal == nil {
		return nil, fmt.Errorf("%w: journal dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{gateway: gateway, journal: journal, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Signer returns the wallet address transactions are sent from.
func (service *Service) Signer() Address {
	return service.gateway.Signer()
}

// CreateBill validates input, submits the creation transaction, waits for
// confirmation, and returns the freshly read bill view. Validation failures
// are reported before anything is submitted.
func (service *Service) CreateBill(ctx context.Context, description string, participantAddresses []string, totalWei *big.Int) (uint64, BillView, error) {
	participants, err := validateCreateInput(description, participantAddresses, totalWei)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationCreateBill, Viewer: service.gateway.Signer(), AmountWei: totalWei, Error: err})
		return 0, BillView{}, err
	}

	recordID, journalErr := service.appendSubmission(ctx, ActionCreateBill, 0, totalWei)
	if journalErr != nil {
		return 0, BillView{}, journalErr
	}

	billID, txHash, err := service.gateway.CreateBill(ctx, strings.TrimSpace(description), participants, totalWei)
	service.markSubmission(ctx, recordID, err, txHash, billID)
	service.logOperation(ctx, OperationLog{Operation: operationCreateBill, Viewer: service.gateway.Signer(), BillID: billID, TxHash: txHash, AmountWei: totalWei, Error: err})
	if err != nil {
		return 0, BillView{}, err
	}

	view, err := service.BillViewFor(ctx, billID, service.gateway.Signer())
	if err != nil {
		return billID, BillView{}, err
	}
	return billID, view, nil
}

// ListBills returns every bill where the viewer is creator or participant,
// in ascending id order.
func (service *Service) ListBills(ctx context.Context, viewer Address) ([]Bill, error) {
	billCount, err := service.gateway.BillCount(ctx)
	if err != nil {
		return nil, err
	}
	return ProjectBills(ctx, billCount, service.gateway.GetBill, viewer)
}

// BillViewFor re-reads one bill and the viewer's payment status and derives
// the view flags. The hasPaid read is deliberate: TotalPaid cannot attribute
// a payment to a specific participant.
func (service *Service) BillViewFor(ctx context.Context, billID uint64, viewer Address) (BillView, error) {
	bill, err := service.gateway.GetBill(ctx, billID)
	if err != nil {
		return BillView{}, err
	}
	viewerHasPaid, err := service.gateway.HasPaid(ctx, billID, viewer)
	if err != nil {
		return BillView{}, err
	}
	allPaid, err := service.gateway.AllPaid(ctx, billID)
	if err != nil {
		return BillView{}, err
	}
	return BillView{
		Bill:    bill,
		AllPaid: allPaid,
		Flags:   DeriveViewFlags(bill, viewer, viewerHasPaid),
	}, nil
}

// PayShare submits the signer's share payment, attaching exactly the bill's
// amountPerPerson, and returns the refreshed view after confirmation.
func (service *Service) PayShare(ctx context.Context, billID uint64) (BillView, error) {
	viewer := service.gateway.Signer()
	bill, err := service.gateway.GetBill(ctx, billID)
	if err != nil {
		return BillView{}, err
	}

	recordID, journalErr := service.appendSubmission(ctx, ActionPayShare, billID, bill.AmountPerPerson)
	if journalErr != nil {
		return BillView{}, journalErr
	}

	txHash, err := service.gateway.PayShare(ctx, billID, bill.AmountPerPerson)
	service.markSubmission(ctx, recordID, err, txHash, billID)
	service.logOperation(ctx, OperationLog{Operation: operationPayShare, Viewer: viewer, BillID: billID, TxHash: txHash, AmountWei: bill.AmountPerPerson, Error: err})
	if err != nil {
		return BillView{}, err
	}
	return service.BillViewFor(ctx, billID, viewer)
}

// Withdraw submits the creator withdrawal and returns the refreshed view
// after confirmation. Authorization is owned by the contract; a rejected call
// surfaces ErrTransactionFailed.
func (service *Service) Withdraw(ctx context.Context, billID uint64) (BillView, error) {
	viewer := service.gateway.Signer()
	if _, err := service.gateway.GetBill(ctx, billID); err != nil {
		return BillView{}, err
	}

	recordID, journalErr := service.appendSubmission(ctx, ActionWithdraw, billID, nil)
	if journalErr != nil {
		return BillView{}, journalErr
	}

	txHash, err := service.gateway.WithdrawFunds(ctx, billID)
	service.markSubmission(ctx, recordID, err, txHash, billID)
	service.logOperation(ctx, OperationLog{Operation: operationWithdraw, Viewer: viewer, BillID: billID, TxHash: txHash, Error: err})
	if err != nil {
		return BillView{}, err
	}
	return service.BillViewFor(ctx, billID, viewer)
}

// History lists the viewer's journaled transaction submissions, newest first.
func (service *Service) History(ctx context.Context, viewer Address, limit int) ([]TransactionRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	records, err := service.journal.ListBySender(ctx, viewer, limit)
	if err != nil {
		return nil, WrapError(operationHistory, errorSubjectJournal, errorCodeFetch, err)
	}
	return records, nil
}

func (service *Service) appendSubmission(ctx context.Context, action Action, billID uint64, valueWei *big.Int) (string, error) {
	value := "0"
	if valueWei != nil {
		value = valueWei.String()
	}
	record := TransactionRecord{
		RecordID:       uuid.NewString(),
		BillID:         billID,
		Action:         action,
		Sender:         service.gateway.Signer(),
		ValueWei:       value,
		Status:         TxStatusSubmitted,
		MetadataJSON:   "{}",
		CreatedUnixUTC: service.nowFn(),
	}
	if err := service.journal.Append(ctx, record); err != nil {
		return "", WrapError(string(action), errorSubjectJournal, errorCodeInvalid, err)
	}
	return record.RecordID, nil
}

func (service *Service) markSubmission(ctx context.Context, recordID string, submissionErr error, txHash string, billID uint64) {
	status := TxStatusConfirmed
	if submissionErr != nil {
		status = TxStatusFailed
	}
	// Journal bookkeeping must not mask the submission outcome.
	_ = service.journal.MarkResult(ctx, recordID, status, txHash, billID)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func validateCreateInput(description string, participantAddresses []string, totalWei *big.Int) ([]Address, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}
	if len(participantAddresses) == 0 {
		return nil, fmt.Errorf("%w: at least one participant is required", ErrValidation)
	}
	participants := make([]Address, 0, len(participantAddresses))
	for index, raw := range participantAddresses {
		participant, err := NewAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: participant %d: %v", ErrValidation, index, err)
		}
		participants = append(participants, participant)
	}
	if totalWei == nil || totalWei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: total value must be positive", ErrValidation)
	}
	return participants, nil
}
