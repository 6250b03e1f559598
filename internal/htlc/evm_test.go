package htlc

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestEncodeDecodeCreateRoundTrip(t *testing.T) {
	want := CreateParams{
		Recipient: common.HexToAddress("0x00000000000000000000000000000000000001"),
		Token:     common.HexToAddress("0x00000000000000000000000000000000000002"),
		Amount:    big.NewInt(1_000_000),
		Timelock:  big.NewInt(900_000),
	}
	want.HUser[0] = 0x11
	want.HLP1[0] = 0x22
	want.HLP2[0] = 0x33

	calldata, err := EncodeCreate(want)
	if err != nil {
		t.Fatalf("EncodeCreate: %v", err)
	}

	got, err := DecodeCreate(calldata)
	if err != nil {
		t.Fatalf("DecodeCreate: %v", err)
	}
	if got.Recipient != want.Recipient || got.Token != want.Token {
		t.Errorf("address mismatch: got %+v", got)
	}
	if got.Amount.Cmp(want.Amount) != 0 || got.Timelock.Cmp(want.Timelock) != 0 {
		t.Errorf("numeric mismatch: got %+v", got)
	}
	if got.HUser != want.HUser || got.HLP1 != want.HLP1 || got.HLP2 != want.HLP2 {
		t.Errorf("hashlock mismatch: got %+v", got)
	}
}

func TestEncodeClaimAndRefund(t *testing.T) {
	var p ClaimParams
	p.ID[0] = 0x01
	p.SUser[0] = 0x02
	p.SLP1[0] = 0x03
	p.SLP2[0] = 0x04

	if _, err := EncodeClaim(p); err != nil {
		t.Fatalf("EncodeClaim: %v", err)
	}
	if _, err := EncodeRefund(p.ID); err != nil {
		t.Fatalf("EncodeRefund: %v", err)
	}
}

func TestDecodeHTLCCreatedLog(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000009")
	amount := big.NewInt(42)
	var hUser, hLP1, hLP2 [32]byte
	hUser[0], hLP1[0], hLP2[0] = 1, 2, 3
	timelock := big.NewInt(700_000)

	data, err := EVMABI.Events["HTLCCreated"].Inputs.NonIndexed().Pack(token, amount, hUser, hLP1, hLP2, timelock)
	if err != nil {
		t.Fatalf("pack event data: %v", err)
	}

	id := common.HexToHash("0xaa")
	recipient := common.HexToAddress("0x00000000000000000000000000000000000005")

	l := types.Log{
		Topics: []common.Hash{topicHTLCCreated, id, recipient.Hash()},
		Data:   data,
		TxHash: common.HexToHash("0xbb"),
	}

	got, err := decodeHTLCCreated(l)
	if err != nil {
		t.Fatalf("decodeHTLCCreated: %v", err)
	}
	if got.Token != token || got.Amount.Cmp(amount) != 0 {
		t.Errorf("unexpected decode: %+v", got)
	}
	if got.HUser != hUser || got.HLP1 != hLP1 || got.HLP2 != hLP2 {
		t.Errorf("unexpected hashlocks: %+v", got)
	}
}

func TestDecodeHTLCClaimedLogAndVerify(t *testing.T) {
	var sUser, sLP1, sLP2 [32]byte
	sUser[0], sLP1[0], sLP2[0] = 0xA1, 0xA2, 0xA3
	hUser := HashSecret(sUser)
	hLP1 := HashSecret(sLP1)
	hLP2 := HashSecret(sLP2)

	data, err := EVMABI.Events["HTLCClaimed"].Inputs.NonIndexed().Pack(sUser, sLP1, sLP2)
	if err != nil {
		t.Fatalf("pack event data: %v", err)
	}

	id := common.HexToHash("0xcc")
	l := types.Log{
		Topics: []common.Hash{topicHTLCClaimed, id},
		Data:   data,
		TxHash: common.HexToHash("0xdd"),
	}

	ev, err := decodeHTLCClaimed(l)
	if err != nil {
		t.Fatalf("decodeHTLCClaimed: %v", err)
	}
	if ev.SUser != sUser || ev.SLP1 != sLP1 || ev.SLP2 != sLP2 {
		t.Errorf("unexpected secrets: %+v", ev)
	}

	if err := VerifyClaimedSecrets(ev, hUser, hLP1, hLP2); err != nil {
		t.Errorf("VerifyClaimedSecrets: %v", err)
	}
	if err := VerifyClaimedSecrets(ev, hLP1, hUser, hLP2); err == nil {
		t.Error("expected mismatch error when hashlocks are swapped")
	}
}

func TestDecodeLogDispatch(t *testing.T) {
	id := common.HexToHash("0xee")
	l := types.Log{Topics: []common.Hash{topicHTLCRefunded, id}, TxHash: common.HexToHash("0xff")}
	out, err := DecodeLog(l)
	if err != nil {
		t.Fatalf("DecodeLog: %v", err)
	}
	refunded, ok := out.(*HTLCRefundedEvent)
	if !ok {
		t.Fatalf("expected *HTLCRefundedEvent, got %T", out)
	}
	if refunded.ID != id {
		t.Errorf("unexpected refunded id: %x", refunded.ID)
	}
}

func TestDecodeLogUnknownTopic(t *testing.T) {
	l := types.Log{Topics: []common.Hash{common.HexToHash("0x00")}}
	if _, err := DecodeLog(l); err == nil {
		t.Fatal("expected error for unrecognized topic")
	}
}

func TestComputeSelector(t *testing.T) {
	sel, err := ComputeSelector("claim")
	if err != nil {
		t.Fatalf("ComputeSelector: %v", err)
	}
	if sel == ([4]byte{}) {
		t.Error("expected nonzero selector")
	}
	if _, err := ComputeSelector("doesNotExist"); err == nil {
		t.Error("expected error for unknown method")
	}
}
