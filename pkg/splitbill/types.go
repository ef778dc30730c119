package splitbill

import (
	"fmt"
	"math/big"
	"strings"
)

// Address is a normalized wallet address. Hex addresses are case-folding
// equivalent, so the value is stored lowercase and all comparisons go through
// the normalized form.
type Address struct {
	value string
}

const (
	addressPrefix    = "0x"
	addressHexLength = 40
)

// NewAddress validates and normalizes a wallet address.
func NewAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, addressPrefix) {
		return Address{}, fmt.Errorf("%w: missing %s prefix", ErrInvalidAddress, addressPrefix)
	}
	digits := trimmed[len(addressPrefix):]
	if len(digits) != addressHexLength {
		return Address{}, fmt.Errorf("%w: expected %d hex digits, got %d", ErrInvalidAddress, addressHexLength, len(digits))
	}
	for _, character := range digits {
		if !isHexDigit(character) {
			return Address{}, fmt.Errorf("%w: non-hex character %q", ErrInvalidAddress, character)
		}
	}
	return Address{value: strings.ToLower(trimmed)}, nil
}

func isHexDigit(character rune) bool {
	switch {
	case character >= '0' && character <= '9':
		return true
	case character >= 'a' && character <= 'f':
		return true
	case character >= 'A' && character <= 'F':
		return true
	}
	return false
}

// String returns the normalized lowercase address.
func (address Address) String() string {
	return address.value
}

// IsZero reports whether the address is the unset value.
func (address Address) IsZero() bool {
	return address.value == ""
}

// Equals compares two addresses case-insensitively.
func (address Address) Equals(other Address) bool {
	return address.value == other.value
}

// Bill is a read-only projection of one bill's contract state.
type Bill struct {
	ID              uint64
	Creator         Address
	Description     string
	TotalAmount     *big.Int
	AmountPerPerson *big.Int
	Participants    []Address
	TotalPaid       *big.Int
	IsActive        bool
}

// NewBill validates a bill projection read from the contract.
func NewBill(id uint64, creator Address, description string, totalAmount, amountPerPerson *big.Int, participants []Address, totalPaid *big.Int, isActive bool) (Bill, error) {
	if creator.IsZero() {
		return Bill{}, fmt.Errorf("%w: creator address is empty", ErrInvalidBill)
	}
	if totalAmount == nil || totalAmount.Sign() < 0 {
		return Bill{}, fmt.Errorf("%w: total amount must be non-negative", ErrInvalidBill)
	}
	if amountPerPerson == nil || amountPerPerson.Sign() < 0 {
		return Bill{}, fmt.Errorf("%w: amount per person must be non-negative", ErrInvalidBill)
	}
	if totalPaid == nil || totalPaid.Sign() < 0 {
		return Bill{}, fmt.Errorf("%w: total paid must be non-negative", ErrInvalidBill)
	}
	if totalPaid.Cmp(totalAmount) > 0 {
		return Bill{}, fmt.Errorf("%w: total paid exceeds total amount", ErrInvalidBill)
	}
	if len(participants) == 0 {
		return Bill{}, fmt.Errorf("%w: participant list is empty", ErrInvalidBill)
	}
	for index, participant := range participants {
		if participant.IsZero() {
			return Bill{}, fmt.Errorf("%w: participant %d is empty", ErrInvalidBill, index)
		}
	}
	return Bill{
		ID:              id,
		Creator:         creator,
		Description:     description,
		TotalAmount:     totalAmount,
		AmountPerPerson: amountPerPerson,
		Participants:    participants,
		TotalPaid:       totalPaid,
		IsActive:        isActive,
	}, nil
}

// HasParticipant reports whether the given address is one of the bill's
// participants. Comparison is case-insensitive via Address normalization.
func (bill Bill) HasParticipant(viewer Address) bool {
	for _, participant := range bill.Participants {
		if participant.Equals(viewer) {
			return true
		}
	}
	return false
}

// Wallet describes one connected wallet session.
type Wallet struct {
	Address     Address
	NetworkName string
	Explorer    string
}

// ViewFlags is the per-viewer derived state for one bill. It is recomputed on
// every read and never cached across refreshes, because TotalPaid and HasPaid
// can change between views.
type ViewFlags struct {
	IsCreator     bool
	IsParticipant bool
	IsActive      bool
	HasPaid       bool
	CanPay        bool
	CanWithdraw   bool
}

// BillView bundles a freshly read bill with the viewer-relative flags.
type BillView struct {
	Bill    Bill
	AllPaid bool
	Flags   ViewFlags
}

// Action identifies a state-mutating contract operation.
type Action string

const (
	ActionCreateBill Action = "create_bill"
	ActionPayShare   Action = "pay_share"
	ActionWithdraw   Action = "withdraw_funds"
)

// TxStatus tracks a journaled transaction through its lifecycle.
type TxStatus string

const (
	TxStatusSubmitted TxStatus = "submitted"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// TransactionRecord is one journaled transaction submission.
type TransactionRecord struct {
	RecordID       string
	BillID         uint64
	Action         Action
	TxHash         string
	Sender         Address
	ValueWei       string
	Status         TxStatus
	MetadataJSON   string
	CreatedUnixUTC int64
}
