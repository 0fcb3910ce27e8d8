package cgroup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndReadAttrRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cpu.shares")
	if err := os.WriteFile(path, []byte("0"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := writeAttr(path, "512"); err != nil {
		t.Fatalf("writeAttr: %v", err)
	}
	value, err := readAttr(path)
	if err != nil {
		t.Fatalf("readAttr: %v", err)
	}
	if value != "512" {
		t.Fatalf("got %q, want %q", value, "512")
	}
}

func TestWriteAttrTruncatesPreviousValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cpu.shares")
	os.WriteFile(path, []byte("1000000"), 0644)

	if err := writeAttr(path, "5"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "5" {
		t.Fatalf("expected truncated content %q, got %q", "5", data)
	}
}

func TestReadAttrMissingFile(t *testing.T) {
	_, err := readAttr(filepath.Join(t.TempDir(), "missing.attr"))
	var cgErr *Error
	if !as(err, &cgErr) || cgErr.Kind != KindValueDoesNotExist {
		t.Fatalf("expected KindValueDoesNotExist, got %v", err)
	}
}

func TestWriteAttrMissingFile(t *testing.T) {
	err := writeAttr(filepath.Join(t.TempDir(), "missing.attr"), "1")
	var cgErr *Error
	if !as(err, &cgErr) || cgErr.Kind != KindValueDoesNotExist {
		t.Fatalf("expected KindValueDoesNotExist, got %v", err)
	}
}

func TestClassifyEPERMDistinguishesSubsystemNotMounted(t *testing.T) {
	dir := t.TempDir()
	// No sibling "tasks" file exists in dir at all.
	err := classifyEPERM(filepath.Join(dir, "cpu.shares"))
	var cgErr *Error
	if !as(err, &cgErr) || cgErr.Kind != KindSubsystemNotMounted {
		t.Fatalf("expected KindSubsystemNotMounted, got %v", err)
	}
}

func TestClassifyEPERMDistinguishesNotAllowed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tasks"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	err := classifyEPERM(filepath.Join(dir, "cpu.shares"))
	var cgErr *Error
	if !as(err, &cgErr) || cgErr.Kind != KindNotAllowed {
		t.Fatalf("expected KindNotAllowed, got %v", err)
	}
}
