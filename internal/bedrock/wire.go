package bedrock

// Message is one turn in the Converse wire format.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock carries one text fragment. Converse supports richer block
// types; this service only sends and reads text.
type ContentBlock struct {
	Text string `json:"text"`
}

// NewTextMessage builds a single-block text message.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{{Text: text}},
	}
}

type converseRequest struct {
	Messages        []Message       `json:"messages"`
	InferenceConfig inferenceConfig `json:"inferenceConfig"`
}

type inferenceConfig struct {
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
}

type converseResponse struct {
	Output struct {
		Message struct {
			Role    string         `json:"role"`
			Content []ContentBlock `json:"content"`
		} `json:"message"`
	} `json:"output"`
	StopReason string `json:"stopReason"`
	Usage      struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
		TotalTokens  int `json:"totalTokens"`
	} `json:"usage"`
}
