package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tidwall/gjson"
)

func TestFormatChatIDSuffixes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		isGroup bool
		want    string
	}{
		{name: "contact", id: "5511999", want: "5511999@c.us"},
		{name: "group", id: "1203630", isGroup: true, want: "1203630@g.us"},
		{name: "already contact", id: "5511999@c.us", want: "5511999@c.us"},
		{name: "already group", id: "1203630@g.us", isGroup: true, want: "1203630@g.us"},
		{name: "foreign domain kept", id: "abc@lid", want: "abc@lid"},
		{name: "blank", id: "  ", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FormatChatID(tc.id, tc.isGroup); got != tc.want {
				t.Fatalf("FormatChatID(%q, %v) = %q, want %q", tc.id, tc.isGroup, got, tc.want)
			}
		})
	}
}

func TestFormatChatIDRoundTrip(t *testing.T) {
	t.Parallel()

	for _, phone := range []string{"111", "5511987654321", "120363000000"} {
		for _, isGroup := range []bool{false, true} {
			bare := FormatChatID(phone, isGroup)
			suffixed := FormatChatID(bare, isGroup)
			if bare != suffixed {
				t.Fatalf("FormatChatID not stable for %q group=%v: %q vs %q", phone, isGroup, bare, suffixed)
			}
		}
	}
}

func TestStripContactSuffix(t *testing.T) {
	t.Parallel()

	if got := StripContactSuffix("111@c.us"); got != "111" {
		t.Fatalf("StripContactSuffix = %q, want %q", got, "111")
	}
	if got := StripContactSuffix("g1@g.us"); got != "g1@g.us" {
		t.Fatalf("StripContactSuffix group = %q, want unchanged", got)
	}
}

func TestContactChatID(t *testing.T) {
	t.Parallel()

	if got := ContactChatID("+55 (11) 9999-0000"); got != "551199990000@c.us" {
		t.Fatalf("ContactChatID = %q", got)
	}
	if got := ContactChatID("551199990000@c.us"); got != "551199990000@c.us" {
		t.Fatalf("ContactChatID suffixed = %q", got)
	}
}

func TestNewCredentialsNormalizesURL(t *testing.T) {
	t.Parallel()

	creds := NewCredentials(" http://localhost:21465/api/ ", "main", "tok", "")
	if creds.APIURL != "http://localhost:21465/api" {
		t.Fatalf("APIURL = %q", creds.APIURL)
	}
	if creds.Token() != "tok" {
		t.Fatalf("Token() = %q, want %q", creds.Token(), "tok")
	}
}

func TestCredentialsSetTokenConcurrentReaders(t *testing.T) {
	t.Parallel()

	creds := NewCredentials("http://x", "s", "old", "")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = creds.Token()
		}()
	}
	creds.SetToken("new")
	wg.Wait()

	if creds.Token() != "new" {
		t.Fatalf("Token() = %q, want %q", creds.Token(), "new")
	}
}

func TestSessionStateCanRegister(t *testing.T) {
	t.Parallel()

	for _, state := range []SessionState{StateAwaitingQR, StateDisconnected, StateUnknown} {
		if !state.CanRegister() {
			t.Fatalf("%s should allow registration", state)
		}
	}
	for _, state := range []SessionState{StateConnected, StateError} {
		if state.CanRegister() {
			t.Fatalf("%s should not allow registration", state)
		}
	}
}

func TestParseBackend(t *testing.T) {
	t.Parallel()

	if got, ok := ParseBackend(""); !ok || got != BackendWPPConnect {
		t.Fatalf("ParseBackend(\"\") = %q, %v", got, ok)
	}
	if got, ok := ParseBackend("WWebJS"); !ok || got != BackendWWebJS {
		t.Fatalf("ParseBackend(WWebJS) = %q, %v", got, ok)
	}
	if _, ok := ParseBackend("telegram"); ok {
		t.Fatal("expected unknown backend to be rejected")
	}
}

func TestCategoryFromError(t *testing.T) {
	t.Parallel()

	if got := CategoryFromError(NewError(ErrorUnsupported, "x")); got != ErrorUnsupported {
		t.Fatalf("category = %q", got)
	}
	wrapped := fmt.Errorf("send: %w", NewError(ErrorAuthRequired, "expired"))
	if got := CategoryFromError(wrapped); got != ErrorAuthRequired {
		t.Fatalf("wrapped category = %q", got)
	}
	if !IsTimeout(fmt.Errorf("poll: %w", context.DeadlineExceeded)) {
		t.Fatal("expected deadline exceeded to be a timeout")
	}
	if got := CategoryFromError(errors.New("connection refused")); got != ErrorTransport {
		t.Fatalf("plain error category = %q", got)
	}
}

func TestUnsupportedResultShape(t *testing.T) {
	t.Parallel()

	result := Unsupported("send_buttons", BackendWWebJS)
	if result.OK {
		t.Fatal("unsupported result must not be ok")
	}
	if result.Category != ErrorUnsupported {
		t.Fatalf("category = %q", result.Category)
	}
	if result.Error != "send_buttons not supported on wwebjs" {
		t.Fatalf("error = %q", result.Error)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if gjson.GetBytes(encoded, "ok").Bool() {
		t.Fatalf("encoded ok = true: %s", encoded)
	}
	if gjson.GetBytes(encoded, "category").String() != ErrorUnsupported {
		t.Fatalf("encoded category missing: %s", encoded)
	}
}

func TestResultMarshalMergesBody(t *testing.T) {
	t.Parallel()

	result := Result{OK: true, StatusCode: 201, Body: []byte(`{"status":"success","response":[1,2]}`)}
	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !gjson.GetBytes(encoded, "ok").Bool() {
		t.Fatalf("ok missing: %s", encoded)
	}
	if gjson.GetBytes(encoded, "status").String() != "success" {
		t.Fatalf("status lost: %s", encoded)
	}
	if result.Status() != "success" {
		t.Fatalf("Status() = %q", result.Status())
	}

	list := Result{OK: true, Body: []byte(`[{"id":"a"}]`)}
	encoded, err = json.Marshal(list)
	if err != nil {
		t.Fatalf("marshal list: %v", err)
	}
	if gjson.GetBytes(encoded, "response.0.id").String() != "a" {
		t.Fatalf("array body not nested under response: %s", encoded)
	}
}

func TestResultErr(t *testing.T) {
	t.Parallel()

	if err := (Result{OK: true}).Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}
	err := Failure(ErrorTransportTimeout, "Timeout after 10 seconds").Err()
	if !IsTimeout(err) {
		t.Fatalf("expected timeout category, got %v", err)
	}
}
