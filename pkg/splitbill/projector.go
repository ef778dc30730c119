package splitbill

import "context"

// BillFetcher reads one bill by id. The projector is the only caller, so an
// indexed lookup can replace the sequential scan without touching callers.
type BillFetcher func(ctx context.Context, billID uint64) (Bill, error)

// ProjectBills scans bill ids [0, billCount) and keeps the bills where the
// viewer is the creator or one of the participants. Ascending id order is
// preserved. One read per bill; acceptable while the id space stays small.
func ProjectBills(ctx context.Context, billCount uint64, fetch BillFetcher, viewer Address) ([]Bill, error) {
	if fetch == nil {
		return nil, WrapError(operationListBills, errorSubjectBill, errorCodeInvalid, ErrInvalidServiceConfig)
	}
	projected := make([]Bill, 0)
	for billID := uint64(0); billID < billCount; billID++ {
		bill, err := fetch(ctx, billID)
		if err != nil {
			return nil, WrapError(operationListBills, errorSubjectBill, errorCodeFetch, err)
		}
		if bill.Creator.Equals(viewer) || bill.HasParticipant(viewer) {
			projected = append(projected, bill)
		}
	}
	return projected, nil
}
