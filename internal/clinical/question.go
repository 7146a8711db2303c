package clinical

// Question is one multiple-choice survey item shown to the patient.
type Question struct {
	Text    string   `json:"text" yaml:"text"`
	Options []string `json:"options" yaml:"options"`
}

// BankQuestion is an entry of the static fallback bank.
type BankQuestion struct {
	ID       string   `json:"id" yaml:"id"`
	Text     string   `json:"question" yaml:"question"`
	Category string   `json:"category" yaml:"category"`
	Options  []string `json:"options" yaml:"options"`
}

// Question projects the bank entry onto a survey Question. The options
// slice is copied so callers cannot mutate the bank.
func (b BankQuestion) Question() Question {
	opts := make([]string, len(b.Options))
	copy(opts, b.Options)
	return Question{Text: b.Text, Options: opts}
}

// ScenarioOptions are the answer choices used for demo scenario questions.
var ScenarioOptions = []string{"Not at all", "Somewhat", "Very much"}
