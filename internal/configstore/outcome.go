package configstore

// SaveOutcome is how a save ended, as shown to the user.
type SaveOutcome int

const (
	SaveSucceeded SaveOutcome = iota + 1
	SaveRejected
	SaveFailed
)

func (o SaveOutcome) String() string {
	switch o {
	case SaveSucceeded:
		return "succeeded"
	case SaveRejected:
		return "rejected"
	case SaveFailed:
		return "failed"
	}
	return "unknown"
}

// Message is the acknowledgement shown for o. The three outcomes stay distinct.
func (o SaveOutcome) Message() string {
	switch o {
	case SaveSucceeded:
		return "Settings saved successfully!"
	case SaveRejected:
		return "Failed to save settings."
	default:
		return "Error saving settings."
	}
}

// SaveResult is the outcome of one Save call. Err is nil on success.
type SaveResult struct {
	Outcome SaveOutcome
	Err     error
}

// Message is the user-facing acknowledgement for the result.
func (r SaveResult) Message() string {
	return r.Outcome.Message()
}
