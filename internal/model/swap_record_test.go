package model

import (
	"reflect"
	"testing"
)

func TestSwapRecordCSVRowOrder(t *testing.T) {
	record := SwapRecord{
		TxHash:    "0xabc",
		TxIndex:   3,
		Block:     131000000,
		GasUsed:   210000,
		Timestamp: "0",
		Pool:      "0x1111111111111111111111111111111111111111",
		Token0:    "0x2222222222222222222222222222222222222222",
		Token1:    "0x3333333333333333333333333333333333333333",
	}

	want := []string{
		"0xabc",
		"3",
		"131000000",
		"210000",
		"0",
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
		"0x3333333333333333333333333333333333333333",
	}

	got := record.CSVRow()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("row mismatch: %v != %v", got, want)
	}
	if len(got) != len(SwapCSVHeader) {
		t.Fatalf("row has %d columns, header has %d", len(got), len(SwapCSVHeader))
	}
}

func TestSwapRecordValid(t *testing.T) {
	record := SwapRecord{TxHash: "0xabc", Timestamp: "0", Pool: "0x1", Token0: "0x2", Token1: "0x3"}
	if !record.Valid() {
		t.Fatalf("expected record to be valid")
	}

	record.Token1 = ""
	if record.Valid() {
		t.Fatalf("record without token1 must be invalid")
	}
}
