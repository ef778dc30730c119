package splitbill

// DeriveViewFlags computes the viewer-relative flags for one bill.
//
// viewerHasPaid must come from a dedicated hasPaid read; TotalPaid alone
// cannot attribute a payment to a specific participant.
func DeriveViewFlags(bill Bill, viewer Address, viewerHasPaid bool) ViewFlags {
	isCreator := bill.Creator.Equals(viewer)
	isParticipant := bill.HasParticipant(viewer)
	return ViewFlags{
		IsCreator:     isCreator,
		IsParticipant: isParticipant,
		IsActive:      bill.IsActive,
		HasPaid:       viewerHasPaid,
		CanPay:        isParticipant && !viewerHasPaid && bill.IsActive,
		CanWithdraw:   isCreator && bill.TotalPaid != nil && bill.TotalPaid.Sign() > 0,
	}
}
