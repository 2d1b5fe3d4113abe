package api

import (
	"net/http/httptest"
	"strings"
	"testing"
)

type ruleBody struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}

func TestDecodeJSON(t *testing.T) {
	var dst ruleBody
	r := httptest.NewRequest("POST", "/api/rules",
		strings.NewReader(`{"name":"storm-guard","priority":10,"enabled":true}`))

	if err := DecodeJSON(r, &dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if dst.Name != "storm-guard" || dst.Priority != 10 || !dst.Enabled {
		t.Errorf("unexpected decode result: %+v", dst)
	}
}

func TestDecodeJSONErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", "request body is empty"},
		{"malformed", `{"name":`, "malformed JSON"},
		{"wrong type", `{"priority":"ten"}`, `invalid value for field "priority"`},
		{"unknown field", `{"severity":"low"}`, "unknown field"},
		{"trailing data", `{"name":"a"}{"name":"b"}`, "unexpected data after JSON body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var dst ruleBody
			r := httptest.NewRequest("POST", "/api/rules", strings.NewReader(tc.body))
			err := DecodeJSON(r, &dst)
			if err == nil {
				t.Fatalf("expected error for %q", tc.body)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tc.want)
			}
		})
	}
}

func TestDecodeJSONOversizedBody(t *testing.T) {
	var dst ruleBody
	big := `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	r := httptest.NewRequest("POST", "/api/rules", strings.NewReader(big))

	err := DecodeJSON(r, &dst)
	if err == nil {
		t.Fatal("expected error for oversized body")
	}
	if !strings.Contains(err.Error(), "exceeds maximum size") {
		t.Errorf("unexpected error: %v", err)
	}
}
