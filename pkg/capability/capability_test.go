package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"unreachable", Unreachable("scrape_website", "https://x", errors.New("dial tcp")), KindUnreachable},
		{"unsupported", Unsupported("scrape_website", "ftp://x", nil), KindUnsupported},
		{"empty", Empty("scrape_website", "https://x"), KindEmpty},
		{"wrapped", fmt.Errorf("retry: %w", Empty("scrape_website", "")), KindEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := KindOf(tt.err)
			if !ok || kind != tt.kind {
				t.Fatalf("expected %s, got %s (%v)", tt.kind, kind, ok)
			}
		})
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("plain error must not have a kind")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Unreachable("scrape_website", "https://example.com", errors.New("no such host"))
	want := "scrape_website unreachable (https://example.com): no such host"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestFunc(t *testing.T) {
	c := NewFunc("upper", "Uppercase the input", func(_ context.Context, arg string) (string, error) {
		return strings.ToUpper(arg), nil
	})
	out, err := c.Invoke(context.Background(), "abc")
	if err != nil || out != "ABC" {
		t.Fatalf("unexpected result %q, %v", out, err)
	}
	if c.Name() != "upper" || c.Description() == "" {
		t.Fatalf("unexpected metadata")
	}
}

func TestRegistry(t *testing.T) {
	a := NewFunc("a", "", nil)
	b := NewFunc("b", "", nil)
	r, err := NewRegistry(a, b)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := r.Register(NewFunc("a", "", nil)); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	got, err := r.Resolve([]string{"b", "a"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got[0].Name() != "b" || got[1].Name() != "a" {
		t.Fatalf("resolve must keep requested order")
	}
	if _, err := r.Resolve([]string{"missing"}); err == nil {
		t.Fatalf("expected unknown capability error")
	}
	if strings.Join(r.Names(), ",") != "a,b" {
		t.Fatalf("unexpected names %v", r.Names())
	}
}
