package splitbill

const (
	operationCreateBill = "create_bill"
	operationListBills  = "list_bills"
	operationBillView   = "bill_view"
	operationPayShare   = "pay_share"
	operationWithdraw   = "withdraw_funds"
	operationHistory    = "history"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	errorSubjectBill    = "bill"
	errorSubjectInput   = "input"
	errorSubjectJournal = "journal"
	errorSubjectRate    = "rate"

	errorCodeEmpty    = "empty"
	errorCodeFetch    = "fetch"
	errorCodeInvalid  = "invalid"
	errorCodeMissing  = "missing"
	errorCodeNegative = "negative"
)
