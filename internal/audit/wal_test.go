package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWALRoundTrip(t *testing.T) {
	wal, err := NewWALStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	e := Entry{
		ID:        "wal-1",
		Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Category:  CategoryPayment,
		Severity:  SeverityCritical,
		Action:    "chargeback",
		UserID:    "u-1",
		Details:   map[string]interface{}{"amount": "100"},
	}
	if err := wal.Write(e); err != nil {
		t.Fatal(err)
	}

	got, err := wal.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "wal-1" || got[0].Action != "chargeback" {
		t.Fatalf("LoadAll = %+v", got)
	}

	if err := wal.Remove("wal-1"); err != nil {
		t.Fatal(err)
	}
	// Повторное удаление — не ошибка
	if err := wal.Remove("wal-1"); err != nil {
		t.Fatalf("double remove: %v", err)
	}

	got, err = wal.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("entries after remove: %+v", got)
	}
}

func TestWALLoadAllSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	wal, err := NewWALStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	wal.Write(Entry{ID: "ok-1", Timestamp: time.Now().UTC(), Severity: SeverityCritical})
	// Битый файл — например, процесс умер посреди записи
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{half"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Чужой файл без .json игнорируется
	os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644)

	got, err := wal.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "ok-1" {
		t.Fatalf("LoadAll = %+v", got)
	}
}

func TestWALLoadAllOrderedByTimestamp(t *testing.T) {
	wal, err := NewWALStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	wal.Write(Entry{ID: "b", Timestamp: base.Add(time.Minute)})
	wal.Write(Entry{ID: "a", Timestamp: base})

	got, err := wal.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("order = %+v", got)
	}
}
