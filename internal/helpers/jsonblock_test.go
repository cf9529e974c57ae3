package helpers

import (
	"errors"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{name: "no json", in: "the model refused to answer", wantErr: ErrNoJSONObject},
		{name: "empty", in: "", wantErr: ErrNoJSONObject},
		{name: "plain object", in: `{"a":1}`, want: `{"a":1}`},
		{name: "surrounded by prose", in: `Sure! Here it is: {"a":{"b":2}} hope that helps`, want: `{"a":{"b":2}}`},
		{name: "markdown fence", in: "```json\n{\"sections\":[\"Intro\"]}\n```", want: `{"sections":["Intro"]}`},
		{name: "multiple objects returns first", in: `{"first":true} and {"second":true}`, want: `{"first":true}`},
		{name: "braces inside strings", in: `{"text":"use } and { freely","n":1}`, want: `{"text":"use } and { freely","n":1}`},
		{name: "escaped quote in string", in: `{"q":"say \"}\" now"}`, want: `{"q":"say \"}\" now"}`},
		{name: "truncated", in: `{"a": {"b": 1}`, wantErr: ErrUnbalancedJSON},
		{name: "unterminated string", in: `{"a": "oops}`, wantErr: ErrUnbalancedJSON},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v (%q)", tt.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeJSONObjectSkipsInvalidBlocks(t *testing.T) {
	t.Parallel()
	var out struct {
		Score int `json:"score"`
	}
	if err := DecodeJSONObject(`Note {this is not json} result: {"score": 7}`, &out); err != nil {
		t.Fatalf("DecodeJSONObject: %v", err)
	}
	if out.Score != 7 {
		t.Fatalf("expected score 7, got %d", out.Score)
	}
}

func TestDecodeJSONObjectFailsClosed(t *testing.T) {
	t.Parallel()
	var out map[string]any
	if err := DecodeJSONObject(`{"a": [1, 2`, &out); !errors.Is(err, ErrUnbalancedJSON) {
		t.Fatalf("expected ErrUnbalancedJSON, got %v", err)
	}
	if err := DecodeJSONObject("", &out); !errors.Is(err, ErrNoJSONObject) {
		t.Fatalf("expected ErrNoJSONObject, got %v", err)
	}
	if err := DecodeJSONObject("{nope}", &out); err == nil {
		t.Fatalf("expected decode error for invalid block")
	}
}

func TestDecodeJSONObjectIgnoresRejectedBlockFields(t *testing.T) {
	t.Parallel()
	var out struct {
		Meta struct {
			Score int `json:"score"`
		} `json:"meta"`
		Sections []string `json:"sections"`
	}
	in := `Example: {"meta":{"score":5},"sections":"bad"} Final: {"sections":["X"]}`
	if err := DecodeJSONObject(in, &out); err != nil {
		t.Fatalf("DecodeJSONObject: %v", err)
	}
	if len(out.Sections) != 1 || out.Sections[0] != "X" {
		t.Fatalf("expected sections [X], got %v", out.Sections)
	}
	if out.Meta.Score != 0 {
		t.Fatalf("fields from the rejected block leaked: score=%d", out.Meta.Score)
	}
}

func TestDecodeJSONObjectRequiresPointer(t *testing.T) {
	t.Parallel()
	var out map[string]any
	if err := DecodeJSONObject(`{"a":1}`, out); err == nil {
		t.Fatalf("expected error for non-pointer target")
	}
}

func TestDecodeJSONObjectStripsBOM(t *testing.T) {
	t.Parallel()
	var out map[string]int
	if err := DecodeJSONObject("\uFEFF{\"a\":1}", &out); err != nil || out["a"] != 1 {
		t.Fatalf("expected BOM to be stripped, got %v %v", out, err)
	}
}
