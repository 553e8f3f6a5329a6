package client

import (
	"testing"

	"github.com/rzbill/natlog/internal/commitlog"
)

func TestCELFilterDisabled(t *testing.T) {
	f, err := newCELFilter("")
	if err != nil {
		t.Fatalf("empty filter: %v", err)
	}
	if !f.Eval(commitlog.Record{}) {
		t.Fatalf("disabled filter must pass everything")
	}
}

func TestCELFilterFields(t *testing.T) {
	f, err := newCELFilter(`key == "user-1" && offset >= 5 && size > 0`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	match := commitlog.Record{Key: []byte("user-1"), Value: []byte("x"), Offset: 7}
	if !f.Eval(match) {
		t.Fatalf("expected match")
	}
	if f.Eval(commitlog.Record{Key: []byte("user-2"), Value: []byte("x"), Offset: 7}) {
		t.Fatalf("key mismatch should not pass")
	}
	if f.Eval(commitlog.Record{Key: []byte("user-1"), Value: []byte("x"), Offset: 2}) {
		t.Fatalf("offset below threshold should not pass")
	}
}

func TestCELFilterJSONPayload(t *testing.T) {
	f, err := newCELFilter(`json.kind == "order" && json.amount > 10.0`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !f.Eval(commitlog.Record{Value: []byte(`{"kind":"order","amount":25}`)}) {
		t.Fatalf("expected match on JSON fields")
	}
	if f.Eval(commitlog.Record{Value: []byte(`{"kind":"refund","amount":25}`)}) {
		t.Fatalf("kind mismatch should not pass")
	}
	// non-JSON payload evaluates to false, not an error
	if f.Eval(commitlog.Record{Value: []byte("plain text")}) {
		t.Fatalf("non-JSON payload should not pass a json filter")
	}
}

func TestCELFilterBadExpression(t *testing.T) {
	if _, err := newCELFilter("this is not CEL ==="); err == nil {
		t.Fatalf("expected compile error")
	}
}
