package dialog

// Response is what the dialog service returns for a single message.
type Response struct {
	Input    Input    `json:"input"`
	Output   Output   `json:"output"`
	Context  Context  `json:"context"`
	Entities []Entity `json:"entities"`
	Intents  []Intent `json:"intents"`
}

type Input struct {
	Text string `json:"text"`
}

// Output holds the lines of text configured on the matched dialog node.
type Output struct {
	Text         []string `json:"text"`
	NodesVisited []string `json:"nodes_visited,omitempty"`
}

// Entity is a value extracted from the user's message, e.g. a sys-location.
type Entity struct {
	Entity     string  `json:"entity"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
}

type Intent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// EntityValues returns the values of all entities of the given type, in order.
func (r *Response) EntityValues(entity string) []string {
	var out []string
	for _, e := range r.Entities {
		if e.Entity == entity {
			out = append(out, e.Value)
		}
	}
	return out
}

type request struct {
	Input            Input   `json:"input"`
	Context          Context `json:"context,omitempty"`
	AlternateIntents bool    `json:"alternate_intents"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
