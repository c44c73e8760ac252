package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPay_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/pay" {
			t.Fatalf("path = %s, want /api/pay", r.URL.Path)
		}

		var req payRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Address != "0x1234567890abcdef1234567890abcdef12345678" {
			t.Fatalf("address = %s", req.Address)
		}
		if req.Amount != "12.5" {
			t.Fatalf("amount = %s, want 12.5", req.Amount)
		}
		if req.Token != "WKC" {
			t.Fatalf("token = %s, want WKC", req.Token)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payResponse{
			Success:      true,
			TxHash:       "0xfeed",
			ExplorerLink: "https://bscscan.example/tx/0xfeed",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.Pay(ctx, "0x1234567890abcdef1234567890abcdef12345678", decimal.RequireFromString("12.5"))
	if err != nil {
		t.Fatalf("Pay error: %v", err)
	}
	if res.TxHash != "0xfeed" {
		t.Fatalf("txHash = %s, want 0xfeed", res.TxHash)
	}
}

func TestPay_Declined(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(payResponse{
			Success: false,
			Error:   "insufficient hot wallet funds",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.Pay(ctx, "0x1234567890abcdef1234567890abcdef12345678", decimal.NewFromInt(1))
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("err = %v, want ErrDeclined", err)
	}
}

func TestPay_SuccessFalseWithOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payResponse{Success: false, Error: "invalid address"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.Pay(ctx, "0x1234567890abcdef1234567890abcdef12345678", decimal.NewFromInt(1))
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("err = %v, want ErrDeclined", err)
	}
}

func TestPay_NetworkErrorIsUnknown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.Pay(ctx, "0x1234567890abcdef1234567890abcdef12345678", decimal.NewFromInt(1))
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("err = %v, want ErrUnknown", err)
	}
}

func TestPay_ServerErrorIsUnknown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.Pay(ctx, "0x1234567890abcdef1234567890abcdef12345678", decimal.NewFromInt(1))
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("err = %v, want ErrUnknown", err)
	}
}

func TestPay_NotConfigured(t *testing.T) {
	var client *Client

	_, err := client.Pay(context.Background(), "0x1234567890abcdef1234567890abcdef12345678", decimal.NewFromInt(1))
	if err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
