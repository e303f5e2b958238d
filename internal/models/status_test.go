package models

import "testing"

func TestProjectLinkStatus_RoundTrip(t *testing.T) {
	for _, s := range []ProjectLinkStatus{ProjectLinked, ProjectLinkPartial, ProjectUnlinked} {
		got, err := ParseProjectLinkStatus(s.String())
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got != s {
			t.Errorf("parse %q = %v, want %v", s.String(), got, s)
		}
	}
}

func TestProjectLinkStatus_InvalidIsUnknown(t *testing.T) {
	got, err := ParseProjectLinkStatus("LINKED")
	if err == nil {
		t.Fatal("expected error for unrecognised value")
	}
	if got != ProjectLinkUnknown {
		t.Errorf("got %v, want unknown", got)
	}
	if _, err := got.Value(); err == nil {
		t.Error("unknown status must not be writable")
	}
}

func TestClientLinkStatus_NA(t *testing.T) {
	got, err := ParseClientLinkStatus("n/a")
	if err != nil {
		t.Fatal(err)
	}
	if got != ClientLinkNA {
		t.Errorf("got %v, want n/a", got)
	}
	v, err := ClientLinkNA.Value()
	if err != nil || v != "n/a" {
		t.Errorf("Value() = %v, %v", v, err)
	}
}

func TestAgingBucket_NoneIsNull(t *testing.T) {
	v, err := AgingNone.Value()
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("AgingNone.Value() = %v, want nil", v)
	}
	b, err := ParseAgingBucket("90+")
	if err != nil || b != Aging90Plus {
		t.Errorf("ParseAgingBucket(90+) = %v, %v", b, err)
	}
}

func TestCommLinkStatus_Parse(t *testing.T) {
	if _, err := ParseCommLinkStatus("maybe"); err == nil {
		t.Error("expected error")
	}
	s, err := ParseCommLinkStatus("unlinked")
	if err != nil || s != CommUnlinked {
		t.Errorf("got %v, %v", s, err)
	}
}

func TestTaskLinks_Equal(t *testing.T) {
	a := TaskLinks{BrandID: Ref("b1"), ProjectLinkStatus: ProjectLinkPartial, ClientLinkStatus: ClientUnlinked}
	b := TaskLinks{BrandID: Ref("b1"), ProjectLinkStatus: ProjectLinkPartial, ClientLinkStatus: ClientUnlinked}
	if !a.Equal(b) {
		t.Error("identical tuples should be equal")
	}
	b.ClientID = Ref("c1")
	if a.Equal(b) {
		t.Error("nil vs non-nil client should differ")
	}
}

func TestInvoice_ValidAR(t *testing.T) {
	inv := Invoice{Status: InvoiceSent, ClientID: Ref("c"), DueDate: Ref("2026-01-01")}
	if !inv.ValidAR() {
		t.Error("sent, unpaid, dated, with client should be valid AR")
	}
	inv.PaidDate = Ref("2026-01-02")
	if inv.ValidAR() {
		t.Error("paid invoice is not valid AR")
	}
	inv = Invoice{Status: InvoiceDraft, ClientID: Ref("c"), DueDate: Ref("2026-01-01")}
	if inv.ValidAR() {
		t.Error("draft invoice is not valid AR")
	}
}
