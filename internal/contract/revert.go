package contract

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// revertSelector is the 4-byte selector of the solidity Error(string) payload.
var revertSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

const revertedPrefix = "execution reverted"

// dataError is the provider error shape carrying raw revert data.
type dataError interface {
	ErrorData() interface{}
}

// revertReason extracts a human-readable revert reason from a provider error.
// Returns "" when the error does not look like a contract revert.
func revertReason(err error) string {
	for unwrapped := err; unwrapped != nil; unwrapped = errors.Unwrap(unwrapped) {
		withData, ok := unwrapped.(dataError)
		if !ok {
			continue
		}
		encoded, ok := withData.ErrorData().(string)
		if !ok {
			continue
		}
		raw, decodeErr := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
		if decodeErr != nil {
			continue
		}
		if reason := decodeRevertData(raw); reason != "" {
			return reason
		}
	}
	if message := err.Error(); strings.Contains(message, revertedPrefix) {
		if index := strings.Index(message, revertedPrefix+": "); index >= 0 {
			return message[index+len(revertedPrefix)+2:]
		}
		return revertedPrefix
	}
	return ""
}

// decodeRevertData unpacks an ABI-encoded Error(string) payload.
func decodeRevertData(data []byte) string {
	if len(data) < 68 || !strings.HasPrefix(hex.EncodeToString(data), hex.EncodeToString(revertSelector)) {
		return ""
	}
	length := new(big.Int).SetBytes(data[36:68])
	if !length.IsInt64() {
		return ""
	}
	end := 68 + length.Int64()
	if end > int64(len(data)) {
		return ""
	}
	return string(data[68:end])
}

// isReverted reports whether the error came from the contract rejecting the
// call, as opposed to the provider being unreachable.
func isReverted(err error) bool {
	if revertReason(err) != "" {
		return true
	}
	return strings.Contains(err.Error(), revertedPrefix)
}
