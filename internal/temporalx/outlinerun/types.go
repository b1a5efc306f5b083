package outlinerun

const (
	WorkflowName    = "outline_run"
	ActivityProcess = "outline_process"
)

type Input struct {
	OutlineID string `json:"outline_id"`
}

type Result struct {
	OutlineID string   `json:"outline_id"`
	Status    string   `json:"status"`
	Reasons   []string `json:"reasons,omitempty"`
	Lessons   int      `json:"lessons"`
	Stage     string   `json:"stage,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// WorkflowID is the deterministic workflow id for an outline, so starting a
// run twice joins the existing execution.
func WorkflowID(outlineID string) string { return "outline-" + outlineID }
