package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// RepairArguments parses a tool call's raw JSON arguments defensively.
// Malformed input goes through a repair library, then a conservative
// escape-strip pass; if nothing parses, the call proceeds with empty
// arguments rather than aborting the task. The repaired result is best
// effort and may not be faithful to the model's intent.
func RepairArguments(raw string) map[string]interface{} {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err == nil && args != nil {
		return args
	}

	if fixed, err := jsonrepair.JSONRepair(raw); err == nil {
		args = nil
		if json.Unmarshal([]byte(fixed), &args) == nil && args != nil {
			return args
		}
	}

	// Last resort before giving up: models sometimes double-escape.
	stripped := strings.ReplaceAll(raw, `\"`, `"`)
	stripped = strings.ReplaceAll(stripped, `\n`, "\n")
	args = nil
	if json.Unmarshal([]byte(stripped), &args) == nil && args != nil {
		return args
	}

	return map[string]interface{}{}
}

// InjectWorkspaceArgs anchors a tool call to the task's own directory by
// supplying the two conventional scoping arguments when the model omitted
// them.
func InjectWorkspaceArgs(args map[string]interface{}, taskDir string) {
	if _, ok := args["task_cache_dir"]; !ok {
		args["task_cache_dir"] = taskDir
	}
	if _, ok := args["workspace"]; !ok {
		args["workspace"] = taskDir
	}
}
