package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestLocalStorage_PutGet(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	key := "uploads/2024/03/01/abc.csv"
	content := []byte("Country Code,Series Code,2020\n")
	if err := storage.Put(ctx, key, content); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := storage.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	got, err := storage.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	// Overwrite replaces the object.
	if err := storage.Put(ctx, key, []byte("v2")); err != nil {
		t.Fatalf("Put overwrite failed: %v", err)
	}
	got, _ = storage.Get(ctx, key)
	if string(got) != "v2" {
		t.Errorf("expected overwritten content, got %q", got)
	}

	if err := storage.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, _ = storage.Exists(ctx, key)
	if exists {
		t.Error("expected object to be deleted")
	}
	if err := storage.Delete(ctx, key); err != nil {
		t.Errorf("deleting a missing object should succeed: %v", err)
	}
}

func TestLocalStorage_GetNotFound(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	_, err = storage.Get(context.Background(), "nonexistent/object.csv")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_List(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{
		"uploads/2024/03/02/b.csv",
		"uploads/2024/03/01/a.csv",
		"uploads/2023/12/31/z.csv",
		"other/x.csv",
	} {
		if err := storage.Put(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Put(%s) failed: %v", key, err)
		}
	}

	keys, err := storage.List(ctx, "uploads/2024/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"uploads/2024/03/01/a.csv", "uploads/2024/03/02/b.csv"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("List = %v, want %v", keys, want)
	}

	keys, err = storage.List(ctx, "missing/")
	if err != nil {
		t.Fatalf("List of empty prefix failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	for _, key := range []string{"../outside.csv", "a/../../outside.csv", ".."} {
		if err := storage.Put(context.Background(), key, []byte("x")); !errors.Is(err, ErrUploadFailed) {
			t.Errorf("Put(%q): expected ErrUploadFailed, got %v", key, err)
		}
	}
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := storage.Put(ctx, "a.csv", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
