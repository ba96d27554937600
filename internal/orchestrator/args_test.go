package orchestrator

import (
	"testing"
)

func TestRepairArguments_ValidJSON(t *testing.T) {
	args := RepairArguments(`{"query": "weather", "limit": 3}`)
	if args["query"] != "weather" {
		t.Errorf("expected query preserved, got %v", args)
	}
	if args["limit"] != float64(3) {
		t.Errorf("expected limit 3, got %v", args["limit"])
	}
}

func TestRepairArguments_RepairableJSON(t *testing.T) {
	// Single quotes and a trailing comma: the repair library handles both.
	args := RepairArguments(`{'query': 'weather',}`)
	if args["query"] != "weather" {
		t.Errorf("expected repaired arguments, got %v", args)
	}
}

func TestRepairArguments_DoubleEscaped(t *testing.T) {
	args := RepairArguments(`{\"filename\": \"a.txt\"}`)
	if args["filename"] != "a.txt" {
		t.Errorf("expected escape-stripped arguments, got %v", args)
	}
}

func TestRepairArguments_UnrepairableFallsBackToEmpty(t *testing.T) {
	args := RepairArguments(`run the tool with defaults please`)
	if args == nil {
		t.Fatal("expected empty map, got nil")
	}
	if len(args) != 0 {
		t.Errorf("expected empty arguments, got %v", args)
	}
}

func TestRepairArguments_EmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n"} {
		args := RepairArguments(raw)
		if args == nil || len(args) != 0 {
			t.Errorf("RepairArguments(%q) = %v, expected empty map", raw, args)
		}
	}
}

func TestInjectWorkspaceArgs(t *testing.T) {
	args := map[string]interface{}{"task_cache_dir": "/custom"}
	InjectWorkspaceArgs(args, "/tasks/t1")

	if args["task_cache_dir"] != "/custom" {
		t.Error("caller-provided task_cache_dir must not be overwritten")
	}
	if args["workspace"] != "/tasks/t1" {
		t.Errorf("workspace not injected: %v", args)
	}
}

func TestHistory_WindowCap(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add("user", string(rune('a'+i)))
	}
	msgs := h.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected window of 3, got %d", len(msgs))
	}
	// Oldest dropped first.
	if msgs[0].Content != "c" || msgs[2].Content != "e" {
		t.Errorf("unexpected window contents: %v", msgs)
	}
}
