package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestNewUTXOClientTrimsTrailingSlash(t *testing.T) {
	c := NewUTXOClient("https://mempool.space/api/")
	if c.baseURL != "https://mempool.space/api" {
		t.Errorf("baseURL = %q, want trailing slash removed", c.baseURL)
	}
}

func TestNewM1ClientIsAUTXOClient(t *testing.T) {
	c := NewM1Client("https://m1-explorer.example/api")
	if c.baseURL != "https://m1-explorer.example/api" {
		t.Errorf("unexpected M1 client base URL: %q", c.baseURL)
	}
}

func TestUTXOClientGetBlockHeight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/blocks/tip/height" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte("812345"))
	}))
	defer srv.Close()

	c := NewUTXOClient(srv.URL)
	height, err := c.GetBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if height != 812345 {
		t.Errorf("height = %d, want 812345", height)
	}
}

func TestUTXOClientGetAddressUTXOs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("100"))
	})
	mux.HandleFunc("/address/bc1qxyz/utxo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"txid":"abc","vout":0,"status":{"confirmed":true,"block_height":95},"value":50000}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewUTXOClient(srv.URL)
	utxos, err := c.GetAddressUTXOs(context.Background(), "bc1qxyz")
	if err != nil {
		t.Fatalf("GetAddressUTXOs: %v", err)
	}
	if len(utxos) != 1 {
		t.Fatalf("expected 1 utxo, got %d", len(utxos))
	}
	if utxos[0].Confirmations != 6 {
		t.Errorf("confirmations = %d, want 6 (100-95+1)", utxos[0].Confirmations)
	}
}

func TestUTXOClientNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewUTXOClient(srv.URL)
	if _, err := c.GetTransaction(context.Background(), "deadbeef"); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestUTXOClientBroadcast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Write([]byte("abcd1234\n"))
	}))
	defer srv.Close()

	c := NewUTXOClient(srv.URL)
	txid, err := c.Broadcast(context.Background(), "0200000001...")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if txid != "abcd1234" {
		t.Errorf("txid = %q, want trimmed %q", txid, "abcd1234")
	}
}

func TestUTXOClientUnsupportedEVMOperations(t *testing.T) {
	c := NewUTXOClient("https://example.invalid")
	if _, err := c.GetReceipt(context.Background(), "0xabc"); err == nil {
		t.Error("expected GetReceipt to be unsupported on a UTXO client")
	}
	if _, err := c.GetLogs(context.Background(), "", nil, 0, 0); err == nil {
		t.Error("expected GetLogs to be unsupported on a UTXO client")
	}
}

func TestUTXOClientGetOutspend(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tx/fundtx/outspend/0", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"spent":true,"txid":"claimtx","witness":["aa","bb","cc","dd","01","ee"]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewUTXOClient(srv.URL)
	out, err := c.GetOutspend(context.Background(), "fundtx", 0)
	if err != nil {
		t.Fatalf("GetOutspend: %v", err)
	}
	if !out.Spent || out.SpendingTxID != "claimtx" || len(out.Witness) != 6 {
		t.Errorf("unexpected outspend: %+v", out)
	}
}

func TestToLogEventRoundTrip(t *testing.T) {
	original := types.Log{
		Address:     common.HexToAddress("0x00000000000000000000000000000000000042"),
		Topics:      []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")},
		Data:        []byte{0xde, 0xad, 0xbe, 0xef},
		BlockNumber: 123,
		TxHash:      common.HexToHash("0x03"),
		Index:       7,
	}

	converted := ToTypesLog(toLogEvent(original))
	if converted.Address != original.Address {
		t.Errorf("address mismatch: %+v", converted)
	}
	if len(converted.Topics) != len(original.Topics) {
		t.Fatalf("topic count mismatch")
	}
	for i := range original.Topics {
		if converted.Topics[i] != original.Topics[i] {
			t.Errorf("topic %d mismatch", i)
		}
	}
	if converted.TxHash != original.TxHash || converted.BlockNumber != original.BlockNumber || converted.Index != original.Index {
		t.Errorf("metadata mismatch: %+v", converted)
	}
}
