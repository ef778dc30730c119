package ratefeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

func TestRatesParsesDataRates(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"data":{"currency":"ETH","rates":{"USD":"2000.55","INR":"204523.12"}}}`))
	}))
	defer server.Close()

	client := New(server.URL, server.Client())
	rates, err := client.Rates(context.Background())
	if err != nil {
		test.Fatalf("rates: %v", err)
	}
	if rates["USD"] != "2000.55" {
		test.Fatalf("expected USD rate 2000.55, got %q", rates["USD"])
	}
	if rates["INR"] != "204523.12" {
		test.Fatalf("expected INR rate 204523.12, got %q", rates["INR"])
	}
}

func TestRatesSurfacesHTTPFailure(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, server.Client())
	_, err := client.Rates(context.Background())
	if !errors.Is(err, splitbill.ErrConnection) {
		test.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestRatesEmptyBodyYieldsEmptyMap(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"data":{"currency":"ETH"}}`))
	}))
	defer server.Close()

	client := New(server.URL, server.Client())
	rates, err := client.Rates(context.Background())
	if err != nil {
		test.Fatalf("rates: %v", err)
	}
	if len(rates) != 0 {
		test.Fatalf("expected empty rate map, got %v", rates)
	}
}
