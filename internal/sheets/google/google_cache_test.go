package google

import (
	"context"
	"testing"
	"time"
)

func TestRowCacheExpiration(t *testing.T) {
	ctx := context.Background()
	sheet := &fakeSheet{rows: [][]any{headerRow, formatRow(ledgerRow(1, "Food", 100))}}
	m := newMirror(sheet, Options{RowCacheTTL: time.Minute})

	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		index, err := m.loadRowIndex(ctx)
		if err != nil {
			t.Fatalf("loadRowIndex() error = %v", err)
		}
		if index[1] != 1 {
			t.Fatalf("index[1] = %d, want row 1", index[1])
		}
	}
	if sheet.gets != 1 {
		t.Errorf("sheet read %d times within TTL, want 1", sheet.gets)
	}

	now = now.Add(2 * time.Minute)
	if _, err := m.loadRowIndex(ctx); err != nil {
		t.Fatal(err)
	}
	if sheet.gets != 2 {
		t.Errorf("sheet read %d times after TTL, want 2", sheet.gets)
	}
}

func TestInvalidateRowCache(t *testing.T) {
	ctx := context.Background()
	sheet := &fakeSheet{rows: [][]any{headerRow}}
	m := newMirror(sheet, Options{RowCacheTTL: 10 * time.Minute})

	if _, err := m.loadRowIndex(ctx); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	valid := m.rowIndex != nil && time.Now().Before(m.cacheExpiresAt)
	m.mu.Unlock()
	if !valid {
		t.Fatal("cache should be valid after a read")
	}

	m.InvalidateRowCache()

	m.mu.Lock()
	valid = m.rowIndex != nil && time.Now().Before(m.cacheExpiresAt)
	m.mu.Unlock()
	if valid {
		t.Error("cache should be empty after invalidation")
	}
}

func TestRowCacheDefaultTTL(t *testing.T) {
	m := newMirror(&fakeSheet{}, Options{})
	if m.cacheValidDuration != defaultRowCacheTTL {
		t.Errorf("cacheValidDuration = %v, want %v", m.cacheValidDuration, defaultRowCacheTTL)
	}
	if m.sheetName != defaultSheetName {
		t.Errorf("sheetName = %q, want %q", m.sheetName, defaultSheetName)
	}
}
