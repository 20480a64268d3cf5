package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/smithy-go"
)

func testS3(attempts int) *S3Storage {
	return &S3Storage{attempts: attempts}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	s := testS3(3)
	calls := 0
	err := s.retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	s := testS3(2)
	calls := 0
	err := s.retry(context.Background(), func() error {
		calls++
		return errors.New("down")
	})
	if err == nil || err.Error() != "down" {
		t.Fatalf("retry() error = %v, want last error", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_NotFoundIsFinal(t *testing.T) {
	for _, code := range []string{"NoSuchKey", "NotFound"} {
		t.Run(code, func(t *testing.T) {
			s := testS3(4)
			calls := 0
			err := s.retry(context.Background(), func() error {
				calls++
				return &smithy.GenericAPIError{Code: code, Message: "missing"}
			})
			if !errors.Is(err, ErrObjectNotFound) {
				t.Fatalf("error = %v, want ErrObjectNotFound", err)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := testS3(3).retry(ctx, func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := map[string]string{
		"":         "",
		"/":        "",
		"ledger":   "ledger/",
		"/ledger/": "ledger/",
		"a/b":      "a/b/",
	}
	for in, want := range tests {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewS3StorageRequiresBucket(t *testing.T) {
	if _, err := NewS3Storage(context.Background(), "", S3Config{}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}
