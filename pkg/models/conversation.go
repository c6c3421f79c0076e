package models

// Turn is one prompt/response exchange of a conversation.
type Turn struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// TokenTrace is the top token chosen at one generation step and its probability.
type TokenTrace struct {
	Token      string  `json:"token"`
	Confidence float64 `json:"confidence"`
}
