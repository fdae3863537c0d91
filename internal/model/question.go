package model

// Question is one interactive question posed by the runtime.
type Question struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options,omitempty"`
	Multiple    bool     `json:"multiple,omitempty"`
	AllowCustom bool     `json:"allow_custom,omitempty"`
}

// QuestionSet is the full outstanding request a session must answer before
// the runtime proceeds. At most one set is pending per session.
type QuestionSet struct {
	RequestID string     `json:"request_id"`
	SessionID string     `json:"session_id"`
	Questions []Question `json:"questions"`
}
