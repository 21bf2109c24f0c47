package inference

// embedRequest is the body of POST /embed.
type embedRequest struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}

// embedResponse is the response of POST /embed.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// transcribeResponse is the response of POST /transcribe.
type transcribeResponse struct {
	Language string        `json:"language,omitempty"`
	Segments []segmentWire `json:"segments"`
}

type segmentWire struct {
	Start float64    `json:"start"`
	End   float64    `json:"end"`
	Text  string     `json:"text"`
	Words []wordWire `json:"words,omitempty"`
}

type wordWire struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
