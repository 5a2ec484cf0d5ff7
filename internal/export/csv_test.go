package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"libreta/internal/core"
)

func TestWriteCSV(t *testing.T) {
	m := core.Member{ID: 12345, FirstName: "María", LastName: "Pérez", InitialSavingsUsd: 10}
	d1 := core.NewDate(2024, time.February, 1)
	d2 := core.NewDate(2024, time.February, 10)
	rates := core.RateTable{d1.ISO(): 40, d2.ISO(): 50}
	h := core.History{ // newest first, as stored
		{ID: "b", MemberID: 12345, Date: d2, Category: core.Loan, AmountBs: 500, Description: "Pago de préstamo", Reference: "9"},
		{ID: "a", MemberID: 12345, Date: d1, Category: core.Savings, AmountBs: 2000, Description: "Depósito"},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, m, h, rates); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want header + 2 rows", len(records))
	}
	if records[0][0] != "ID" || records[0][8] != "Saldo Ahorro $" {
		t.Errorf("header = %v", records[0])
	}

	// Oldest first.
	if records[1][0] != "a" || records[2][0] != "b" {
		t.Errorf("rows not in date order: %v / %v", records[1], records[2])
	}

	// Savings row: 2000 Bs at 40 = 50 USD, balance 10 + 50 = 60.
	if records[1][5] != "2000.00" || records[1][7] != "50.00" || records[1][8] != "60.00" {
		t.Errorf("savings row = %v", records[1])
	}
	// Loan row does not move the savings balance.
	if records[2][7] != "10.00" || records[2][8] != "60.00" {
		t.Errorf("loan row = %v", records[2])
	}
	if records[2][2] != "Préstamo" {
		t.Errorf("category label = %q", records[2][2])
	}
}

func TestWriteCSVMissingRate(t *testing.T) {
	m := core.Member{ID: 1, FirstName: "A", LastName: "B"}
	d := core.NewDate(2024, time.February, 1)
	h := core.History{
		{ID: "a", MemberID: 1, Date: d, Category: core.Savings, AmountBs: 2000, Description: "x"},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, m, h, core.RateTable{}); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	records, _ := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	// Rate column empty, USD converts to zero.
	if records[1][6] != "" || records[1][7] != "0.00" {
		t.Errorf("row with missing rate = %v", records[1])
	}
}
