package pix

import (
	"strings"
	"testing"
)

var testEncoder = Encoder{
	Key:          "e7ea3b26-dd31-4c43-8ed7-6cd4f6c69abc",
	MerchantName: "VICENTE ARDITO JUNIOR",
	MerchantCity: "SAO PAULO",
}

// Golden vector verified against a payload accepted by real banking apps.
const goldenPayload = "00020126580014BR.GOV.BCB.PIX0136e7ea3b26-dd31-4c43-8ed7-6cd4f6c69abc5204000053039865802BR5921VICENTE ARDITO JUNIOR6009SAO PAULO62070503***63042A87"

func TestPayload_GoldenVector(t *testing.T) {
	got := testEncoder.Payload("abc-123", nil)
	if got != goldenPayload {
		t.Errorf("payload mismatch:\n got %s\nwant %s", got, goldenPayload)
	}
}

func TestChecksum_GoldenVector(t *testing.T) {
	body := strings.TrimSuffix(goldenPayload, "2A87")
	if got := checksum(body); got != "2A87" {
		t.Errorf("expected checksum 2A87, got %s", got)
	}
}

func TestPayload_Deterministic(t *testing.T) {
	a := testEncoder.Payload("loja-xyz", nil)
	b := testEncoder.Payload("loja-xyz", nil)
	if a != b {
		t.Errorf("same inputs produced different payloads:\n%s\n%s", a, b)
	}
}

func TestPayload_AmountNeverEmitted(t *testing.T) {
	for _, amount := range []float64{0, 10.50, 5000} {
		v := amount
		payload := testEncoder.Payload("abc", &v)
		// Field 54 carries the transaction amount; it must not appear
		// between the currency field and the country field.
		if strings.Contains(payload, "530398654") {
			t.Errorf("amount %.2f leaked a 54 field into %s", amount, payload)
		}
		if payload != testEncoder.Payload("abc", nil) {
			t.Errorf("amount %.2f changed the payload", amount)
		}
	}
}

func TestPayload_FieldLengths(t *testing.T) {
	e := Encoder{Key: "chave@banco.br", MerchantName: "LOJA X", MerchantCity: "RECIFE"}
	payload := e.Payload("", nil)

	if !strings.Contains(payload, "5906LOJA X") {
		t.Errorf("merchant name length not encoded: %s", payload)
	}
	if !strings.Contains(payload, "6006RECIFE") {
		t.Errorf("city length not encoded: %s", payload)
	}
	// GUI (18) + key field (4 + 14) = 36.
	if !strings.Contains(payload, "26360014BR.GOV.BCB.PIX0114chave@banco.br") {
		t.Errorf("merchant account info length not encoded: %s", payload)
	}
}

func TestChecksum_Formatting(t *testing.T) {
	got := checksum("")
	if len(got) != 4 || got != strings.ToUpper(got) {
		t.Errorf("checksum must be 4 uppercase hex digits, got %q", got)
	}
}
