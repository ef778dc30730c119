package webapi

import (
	"context"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

// zapOperationLogger adapts zap to the service's OperationLogger.
type zapOperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger returns an OperationLogger that writes structured zap
// entries for every service operation.
func NewOperationLogger(logger *zap.Logger) splitbill.OperationLogger {
	return &zapOperationLogger{logger: logger}
}

func (operationLogger *zapOperationLogger) LogOperation(_ context.Context, entry splitbill.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("viewer", entry.Viewer.String()),
		zap.Uint64("bill_id", entry.BillID),
		zap.String("status", entry.Status),
	}
	if entry.TxHash != "" {
		fields = append(fields, zap.String("tx_hash", entry.TxHash))
	}
	if entry.AmountWei != nil {
		fields = append(fields, zap.String("amount_wei", entry.AmountWei.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("operation failed", fields...)
		return
	}
	operationLogger.logger.Info("operation completed", fields...)
}
