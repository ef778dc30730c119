package contract

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

type fakeRPCError struct {
	message string
	data    string
}

func (err fakeRPCError) Error() string {
	return err.message
}

func (err fakeRPCError) ErrorData() interface{} {
	return err.data
}

// encodeRevertPayload builds the hex form of a solidity Error(string) payload.
func encodeRevertPayload(test *testing.T, reason string) string {
	test.Helper()
	payload := make([]byte, 0, 68+len(reason))
	payload = append(payload, revertSelector...)
	offset := make([]byte, 32)
	offset[31] = 0x20
	payload = append(payload, offset...)
	length := make([]byte, 32)
	length[31] = byte(len(reason))
	payload = append(payload, length...)
	payload = append(payload, []byte(reason)...)
	padding := 32 - len(reason)%32
	if padding < 32 {
		payload = append(payload, make([]byte, padding)...)
	}
	return "0x" + hex.EncodeToString(payload)
}

func TestDecodeRevertDataRecoversReason(test *testing.T) {
	test.Parallel()
	encoded := encodeRevertPayload(test, "Only creator can withdraw")
	raw, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
	if err != nil {
		test.Fatalf("decode payload: %v", err)
	}
	if reason := decodeRevertData(raw); reason != "Only creator can withdraw" {
		test.Fatalf("expected revert reason, got %q", reason)
	}
}

func TestDecodeRevertDataRejectsForeignSelector(test *testing.T) {
	test.Parallel()
	raw := make([]byte, 68)
	raw[0] = 0xde
	raw[1] = 0xad
	if reason := decodeRevertData(raw); reason != "" {
		test.Fatalf("expected empty reason for foreign selector, got %q", reason)
	}
}

func TestRevertReasonFromErrorData(test *testing.T) {
	test.Parallel()
	providerErr := fakeRPCError{
		message: "execution reverted",
		data:    encodeRevertPayload(test, "Bill is not active"),
	}
	if reason := revertReason(providerErr); reason != "Bill is not active" {
		test.Fatalf("expected decoded reason, got %q", reason)
	}
}

func TestRevertReasonFromMessageSuffix(test *testing.T) {
	test.Parallel()
	providerErr := errors.New("execution reverted: no funds to withdraw")
	if reason := revertReason(providerErr); reason != "no funds to withdraw" {
		test.Fatalf("expected message suffix, got %q", reason)
	}
}

func TestRevertReasonIgnoresConnectionErrors(test *testing.T) {
	test.Parallel()
	providerErr := errors.New("dial tcp 127.0.0.1:8545: connection refused")
	if reason := revertReason(providerErr); reason != "" {
		test.Fatalf("expected no reason for connection error, got %q", reason)
	}
	if isReverted(providerErr) {
		test.Fatal("connection error must not classify as revert")
	}
}
