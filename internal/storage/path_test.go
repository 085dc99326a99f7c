package storage

import (
	"testing"
	"time"
)

func TestBuildUploadPath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 4, 5, 6, 0, time.FixedZone("x", -5*3600))
	key, err := BuildUploadPath("Hospital", "patients", "batch one.csv", ts)
	if err != nil {
		t.Fatalf("BuildUploadPath() error = %v", err)
	}
	want := "uploads/Hospital/patients/20260219T090506Z_batch_one.csv"
	if key != want {
		t.Fatalf("BuildUploadPath() = %q, want %q", key, want)
	}
}

func TestBuildUploadPathStripsClientDirectories(t *testing.T) {
	ts := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	key, err := BuildUploadPath("SQLUser", "people", `C:\Users\alice\data.csv`, ts)
	if err != nil {
		t.Fatalf("BuildUploadPath() error = %v", err)
	}
	want := "uploads/SQLUser/people/20260301T120000Z_data.csv"
	if key != want {
		t.Fatalf("BuildUploadPath() = %q, want %q", key, want)
	}
}

func TestBuildReceiptPath(t *testing.T) {
	key, err := BuildReceiptPath("SQLUser", "patients", "imp-20260219-a1b2")
	if err != nil {
		t.Fatalf("BuildReceiptPath() error = %v", err)
	}
	want := "receipts/SQLUser/patients/import-imp-20260219-a1b2.parquet"
	if key != want {
		t.Fatalf("BuildReceiptPath() = %q, want %q", key, want)
	}
}

func TestBuildReceiptPrefix(t *testing.T) {
	prefix, err := BuildReceiptPrefix("SQLUser", "patients")
	if err != nil {
		t.Fatalf("BuildReceiptPrefix() error = %v", err)
	}
	if prefix != "receipts/SQLUser/patients/" {
		t.Fatalf("BuildReceiptPrefix() = %q", prefix)
	}
	if _, err := BuildReceiptPrefix("SQLUser", "bad name"); err == nil {
		t.Fatal("expected invalid table component error")
	}
}

func TestBuildPathRejectsInvalidComponent(t *testing.T) {
	if _, err := BuildUploadPath("../oops", "patients", "a.csv", time.Now()); err == nil {
		t.Fatal("expected invalid schema component error")
	}
	if _, err := BuildReceiptPath("SQLUser", "bad name", "imp-1"); err == nil {
		t.Fatal("expected invalid table component error")
	}
}
