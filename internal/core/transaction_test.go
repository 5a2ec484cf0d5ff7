package core

import (
	"testing"
	"time"
)

func TestGroupKeyEmptyReferenceNeverCollides(t *testing.T) {
	d := NewDate(2024, time.March, 1)
	a := tx("a", d, Savings, 100, 0)
	b := tx("b", d, Loan, 100, 0)
	if a.Key() == b.Key() {
		t.Fatalf("two reference-less transactions on the same date share a key")
	}

	a.Reference = "777"
	b.Reference = "777"
	if a.Key() != b.Key() {
		t.Fatalf("same date and reference must share a key")
	}
}

func TestGroups(t *testing.T) {
	d1 := NewDate(2024, time.March, 1)
	d2 := NewDate(2024, time.March, 5)
	withRef := func(id string, d Date, cat Category, ref string) Transaction {
		x := tx(id, d, cat, 100, 0)
		x.Reference = ref
		return x
	}
	h := History{ // newest first
		withRef("d", d2, Savings, "222"),
		withRef("c", d2, Loan, "222"),
		tx("b", d1, Savings, 100, 0),
		withRef("a", d1, Savings, "111"),
	}

	groups := h.Groups()
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if got := len(groups[0].Txs); got != 2 {
		t.Errorf("first group has %d rows, want 2", got)
	}
	if groups[0].Key.Reference != "222" {
		t.Errorf("first group ref = %q, want 222", groups[0].Key.Reference)
	}
	if groups[1].Key.Solo != "b" {
		t.Errorf("reference-less row must form a solo group, got %+v", groups[1].Key)
	}
}

func TestGroupSortForReceipt(t *testing.T) {
	d := NewDate(2024, time.March, 1)
	g := Group{Txs: []Transaction{
		tx("1", d, Savings, 100, 0),
		tx("2", d, Fund, 100, 0),
		tx("3", d, Loan, 100, 0),
		tx("4", d, SocialProtection, 100, 0),
		tx("5", d, ContributionCertificate, 100, 0),
	}}
	want := []Category{Loan, ContributionCertificate, SocialProtection, Fund, Savings}
	for i, row := range g.SortForReceipt() {
		if row.Category != want[i] {
			t.Errorf("position %d = %s, want %s", i, row.Category, want[i])
		}
	}
}

func TestHistoryWithoutIDs(t *testing.T) {
	d := NewDate(2024, time.March, 1)
	h := History{tx("a", d, Savings, 100, 0), tx("b", d, Loan, 100, 0)}
	out := h.WithoutIDs([]string{"a"})
	if len(out) != 1 || out[0].ID != "b" {
		t.Errorf("WithoutIDs = %+v", out)
	}
}

func TestDraftValidate(t *testing.T) {
	d := NewDate(2024, time.March, 1)
	tests := []struct {
		name    string
		draft   Draft
		wantErr bool
	}{
		{"valid", Draft{Date: d, Category: Savings, AmountBs: 100, Description: "ok"}, false},
		{"withdrawal", Draft{Date: d, Category: Savings, AmountBs: -100, Description: "retiro"}, false},
		{"negative loan", Draft{Date: d, Category: Loan, AmountBs: -100, Description: "x"}, true},
		{"zero amount", Draft{Date: d, Category: Savings, Description: "x"}, true},
		{"no description", Draft{Date: d, Category: Savings, AmountBs: 100}, true},
		{"bad category", Draft{Date: d, Category: "tips", AmountBs: 100, Description: "x"}, true},
		{"zero date", Draft{Category: Savings, AmountBs: 100, Description: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.draft.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("social_protection")
	if err != nil || c != SocialProtection {
		t.Fatalf("ParseCategory = %v, %v", c, err)
	}
	if _, err := ParseCategory("misc"); err == nil {
		t.Fatal("unknown category accepted")
	}
	if got := SocialProtection.Label(); got != "Protección Social" {
		t.Errorf("label = %q", got)
	}
}
