package client

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestRequest_WithHeaderCopies(t *testing.T) {
	orig := NewRequest("get", "/x", NoBody)
	orig.Headers = map[string]string{"Accept": "text/plain"}

	next := orig.WithHeader("accept", "application/json")

	if orig.Headers["Accept"] != "text/plain" {
		t.Errorf("original header changed to %q", orig.Headers["Accept"])
	}
	if v, _ := next.Header("ACCEPT"); v != "application/json" {
		t.Errorf("Header(ACCEPT) = %q, want application/json", v)
	}
	if len(next.Headers) != 1 {
		t.Errorf("headers = %v, want one entry", next.Headers)
	}
	if orig.Method != http.MethodGet {
		t.Errorf("Method = %q, want GET", orig.Method)
	}
}

func TestRequest_WithoutHeader(t *testing.T) {
	r := NewRequest(http.MethodGet, "/x", NoBody).WithHeader("Authorization", "Bearer a")
	out := r.WithoutHeader("authorization")
	if _, ok := out.Header("Authorization"); ok {
		t.Error("Authorization still present")
	}
	if _, ok := r.Header("Authorization"); !ok {
		t.Error("WithoutHeader modified the receiver")
	}
}

func TestBody_EncodeIsRepeatable(t *testing.T) {
	bodies := []Body{
		JSON(map[string]int{"a": 1}),
		Raw([]byte("payload"), ""),
	}
	for _, b := range bodies {
		r1, _, err := b.encode()
		if err != nil {
			t.Fatalf("encode(%v) error = %v", b.Kind(), err)
		}
		r2, _, _ := b.encode()
		d1, _ := io.ReadAll(r1)
		d2, _ := io.ReadAll(r2)
		if !bytes.Equal(d1, d2) || len(d1) == 0 {
			t.Errorf("encode(%v) not repeatable: %q vs %q", b.Kind(), d1, d2)
		}
	}
}

func TestBody_NoneHasNoReader(t *testing.T) {
	r, ct, err := NoBody.encode()
	if r != nil || ct != "" || err != nil {
		t.Errorf("NoBody.encode() = (%v, %q, %v), want (nil, \"\", nil)", r, ct, err)
	}
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{200, KindSuccess},
		{204, KindSuccess},
		{301, KindClientError},
		{101, KindClientError},
		{400, KindClientError},
		{499, KindClientError},
		{500, KindServerError},
		{599, KindServerError},
	}
	for _, tt := range tests {
		if got := KindForStatus(tt.status); got != tt.want {
			t.Errorf("KindForStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestOutcome_FaultDefaults(t *testing.T) {
	req := NewRequest(http.MethodGet, "/x", NoBody)

	f := Outcome{Kind: KindServerError, Status: 502}.fault(req)
	if f.Message != "Bad Gateway" {
		t.Errorf("Message = %q, want status text", f.Message)
	}
	if !f.Transient() {
		t.Error("server fault not transient")
	}

	f = Outcome{Kind: KindTimeout}.fault(req)
	if f.Status != http.StatusRequestTimeout || f.Code != CodeTimeout {
		t.Errorf("timeout fault = {Status:%d Code:%q}", f.Status, f.Code)
	}

	f = Outcome{Kind: KindClientError, Status: 400, Body: []byte(`{"error":{"message":"bad field","code":"E_FIELD"}}`)}.fault(req)
	if f.Message != "bad field" || f.Code != "E_FIELD" {
		t.Errorf("nested error = {Message:%q Code:%q}", f.Message, f.Code)
	}
	if f.Transient() {
		t.Error("client fault transient")
	}
}

func TestWithRetriesClampsNegative(t *testing.T) {
	r := NewRequest(http.MethodGet, "/", NoBody)
	WithRetries(-3)(&r)
	if r.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", r.MaxRetries)
	}
	WithTimeout(time.Second)(&r)
	if r.Timeout != time.Second {
		t.Errorf("Timeout = %v", r.Timeout)
	}
}
