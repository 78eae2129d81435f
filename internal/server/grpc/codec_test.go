package grpc

import (
	"encoding/json"
	"testing"

	"github.com/dmitrijs2005/gradekeeper/internal/api"
)

func TestJSONCodec_WireIsJSON(t *testing.T) {
	c := JSONCodec{}
	if c.Name() != "json" {
		t.Fatalf("codec name = %q, want json", c.Name())
	}

	b, err := c.Marshal(&api.TransitionRequest{ID: "a-1", To: "submitted"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !json.Valid(b) {
		t.Fatalf("wire body is not JSON: %q", b)
	}

	var got api.TransitionRequest
	if err := c.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ID != "a-1" || got.To != "submitted" {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestJSONCodec_EmptyBodyLeavesTarget(t *testing.T) {
	got := api.AssignmentRef{ID: "keep"}
	if err := (JSONCodec{}).Unmarshal(nil, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ID != "keep" {
		t.Fatalf("empty body must not touch the target, got %+v", got)
	}
}
