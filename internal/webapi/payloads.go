package webapi

import (
	"encoding/json"
	"math/big"

	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

type sessionRequest struct {
	Address string `json:"address"`
}

type createBillRequest struct {
	Description  string   `json:"description"`
	Participants []string `json:"participants"`
	// AmountEth is used directly when Currency is empty; otherwise AmountFiat
	// is converted through the current exchange rate for Currency.
	AmountEth  string `json:"amount_eth"`
	AmountFiat string `json:"amount_fiat"`
	Currency   string `json:"currency"`
}

type walletPayload struct {
	Address     string `json:"address"`
	NetworkName string `json:"network_name"`
	Explorer    string `json:"explorer"`
}

type billPayload struct {
	BillID          uint64   `json:"bill_id"`
	Creator         string   `json:"creator"`
	Description     string   `json:"description"`
	TotalAmountWei  string   `json:"total_amount_wei"`
	TotalAmountEth  string   `json:"total_amount_eth"`
	AmountEachWei   string   `json:"amount_per_person_wei"`
	AmountEachEth   string   `json:"amount_per_person_eth"`
	TotalPaidWei    string   `json:"total_paid_wei"`
	TotalPaidEth    string   `json:"total_paid_eth"`
	Participants    []string `json:"participants"`
	IsActive        bool     `json:"is_active"`
}

type viewPayload struct {
	Bill          billPayload `json:"bill"`
	AllPaid       bool        `json:"all_paid"`
	IsCreator     bool        `json:"is_creator"`
	IsParticipant bool        `json:"is_participant"`
	HasPaid       bool        `json:"has_paid"`
	CanPay        bool        `json:"can_pay"`
	CanWithdraw   bool        `json:"can_withdraw"`
}

type recordPayload struct {
	RecordID       string          `json:"record_id"`
	BillID         uint64          `json:"bill_id"`
	Action         string          `json:"action"`
	TxHash         string          `json:"tx_hash"`
	Sender         string          `json:"sender"`
	ValueWei       string          `json:"value_wei"`
	ValueEth       string          `json:"value_eth"`
	Status         string          `json:"status"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

func walletToPayload(wallet splitbill.Wallet) walletPayload {
	return walletPayload{
		Address:     wallet.Address.String(),
		NetworkName: wallet.NetworkName,
		Explorer:    wallet.Explorer,
	}
}

func billToPayload(bill splitbill.Bill) billPayload {
	participants := make([]string, 0, len(bill.Participants))
	for _, participant := range bill.Participants {
		participants = append(participants, participant.String())
	}
	return billPayload{
		BillID:         bill.ID,
		Creator:        bill.Creator.String(),
		Description:    bill.Description,
		TotalAmountWei: bill.TotalAmount.String(),
		TotalAmountEth: splitbill.EthStringFromWei(bill.TotalAmount),
		AmountEachWei:  bill.AmountPerPerson.String(),
		AmountEachEth:  splitbill.EthStringFromWei(bill.AmountPerPerson),
		TotalPaidWei:   bill.TotalPaid.String(),
		TotalPaidEth:   splitbill.EthStringFromWei(bill.TotalPaid),
		Participants:   participants,
		IsActive:       bill.IsActive,
	}
}

func viewToPayload(view splitbill.BillView) viewPayload {
	return viewPayload{
		Bill:          billToPayload(view.Bill),
		AllPaid:       view.AllPaid,
		IsCreator:     view.Flags.IsCreator,
		IsParticipant: view.Flags.IsParticipant,
		HasPaid:       view.Flags.HasPaid,
		CanPay:        view.Flags.CanPay,
		CanWithdraw:   view.Flags.CanWithdraw,
	}
}

func recordToPayload(record splitbill.TransactionRecord) recordPayload {
	metadata := record.MetadataJSON
	if metadata == "" {
		metadata = "{}"
	}
	valueEth := record.ValueWei
	if wei, ok := weiFromString(record.ValueWei); ok {
		valueEth = splitbill.EthStringFromWei(wei)
	}
	return recordPayload{
		RecordID:       record.RecordID,
		BillID:         record.BillID,
		Action:         string(record.Action),
		TxHash:         record.TxHash,
		Sender:         record.Sender.String(),
		ValueWei:       record.ValueWei,
		ValueEth:       valueEth,
		Status:         string(record.Status),
		Metadata:       json.RawMessage(metadata),
		CreatedUnixUTC: record.CreatedUnixUTC,
	}
}

func weiFromString(raw string) (*big.Int, bool) {
	return new(big.Int).SetString(raw, 10)
}
