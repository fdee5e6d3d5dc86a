package pipeline

// Step is a stage of the job state machine.
type Step string

const (
	// StepIdle is the client-side resting state; the server never emits it.
	StepIdle         Step = "idle"
	StepDownloading  Step = "downloading"
	StepTranscribing Step = "transcribing"
	StepCleaning     Step = "cleaning"
	StepSummarizing  Step = "summarizing"
	StepComplete     Step = "complete"
)

// Steps lists the emitted progress tags in order.
var Steps = []Step{StepDownloading, StepTranscribing, StepCleaning, StepSummarizing, StepComplete}

// Processing reports whether a job is in flight at this step.
func (s Step) Processing() bool {
	return s != "" && s != StepIdle && s != StepComplete
}

// Event is one record of the stream. Build it with Progress, Transcript,
// Complete or Failure so only valid field combinations are encoded.
type Event struct {
	Step          Step   `json:"step,omitempty"`
	Transcription string `json:"transcription,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Error         string `json:"error,omitempty"`
}

func Progress(step Step) Event {
	return Event{Step: step}
}

func Transcript(text string) Event {
	return Event{Transcription: text}
}

func Complete(summary string) Event {
	return Event{Summary: summary, Step: StepComplete}
}

func Failure(msg string) Event {
	return Event{Error: msg}
}

// Terminal reports whether no further event may follow e.
func (e Event) Terminal() bool {
	return e.Error != "" || e.Step == StepComplete
}
