package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookAcceptsEvents(t *testing.T) {
	out := make(chan ChangeEvent, 4)
	h := NewWebhookHandler(out, nil)

	body := `[{"table":"vendors","type":"INSERT","record":{"id":"a","name":"Alpha"}},
		{"table":"incidents","type":"DELETE","old_record":{"id":"i1"}}]`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/changes", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Accepted int `json:"accepted"`
		Dropped  int `json:"dropped"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted != 2 || resp.Dropped != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	first := <-out
	if first.Source != "webhook" || first.Table != TableVendors {
		t.Fatalf("unexpected event: %+v", first)
	}
}

func TestWebhookRejectsBadPayloads(t *testing.T) {
	h := NewWebhookHandler(make(chan ChangeEvent, 1), nil)
	for _, body := range []string{"", "{", `{"table":"vendors","type":"NOPE","record":{"id":"a"}}`} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/changes", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", body, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/changes", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestWebhookReportsDroppedWhenFull(t *testing.T) {
	out := make(chan ChangeEvent, 1)
	h := NewWebhookHandler(out, nil)
	body := `[{"table":"vendors","type":"INSERT","record":{"id":"a"}},{"table":"vendors","type":"INSERT","record":{"id":"b"}}]`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/changes", strings.NewReader(body)))
	if !strings.Contains(rec.Body.String(), `"dropped":1`) {
		t.Fatalf("expected one dropped event, got %s", rec.Body.String())
	}
}
