// Package pix builds static BR Code payment payloads (PIX, the Brazilian
// instant-payment standard). The payload is a merchant-presented EMV QR
// string: ordered tag-length-value fields terminated by a CRC16 checksum,
// suitable for copy-and-paste into any banking app.
package pix

import "fmt"

// Encoder holds the fixed beneficiary data embedded in every payload.
type Encoder struct {
	Key          string // PIX key (typically a random UUID key)
	MerchantName string
	MerchantCity string
}

// Payload assembles the static BR Code for this beneficiary. The txid and
// amount parameters are accepted for call-site parity but not encoded: the
// transaction reference is emitted as the "***" placeholder and the amount
// field (54) is deliberately suppressed so the payer picks the value in
// their banking app.
func (e Encoder) Payload(txid string, amount *float64) string {
	_ = txid
	_ = amount

	merchantAccount := "0014BR.GOV.BCB.PIX" + field("01", e.Key)

	payload := "000201" +
		field("26", merchantAccount) +
		"52040000" + // merchant category code: unspecified
		"5303986" + // currency: BRL
		"5802BR" +
		field("59", e.MerchantName) +
		field("60", e.MerchantCity) +
		field("62", field("05", "***")) +
		"6304" // CRC tag + length; value appended below

	return payload + checksum(payload)
}

// field renders one TLV field: two-digit tag, two-digit length, value.
func field(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// checksum computes CRC-16/CCITT-FALSE over the payload bytes and formats
// it as four uppercase hex digits. Init 0xFFFF, polynomial 0x1021.
func checksum(payload string) string {
	crc := uint16(0xFFFF)
	for i := 0; i < len(payload); i++ {
		crc ^= uint16(payload[i]) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return fmt.Sprintf("%04X", crc)
}
