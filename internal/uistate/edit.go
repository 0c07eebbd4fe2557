package uistate

type EditState string

const (
	EditIdle    EditState = "idle"
	EditEditing EditState = "editing"
)

// EditSession is edit-in-place for one message at a time.
type EditSession struct {
	messageID string
	original  string
	draft     string
}

func (e *EditSession) State() EditState {
	if e.messageID == "" {
		return EditIdle
	}
	return EditEditing
}

func (e *EditSession) MessageID() string { return e.messageID }

func (e *EditSession) Draft() string { return e.draft }

// Begin starts editing messageID, dropping any unsaved draft of another
// message.
func (e *EditSession) Begin(messageID, text string) {
	e.messageID = messageID
	e.original = text
	e.draft = text
}

func (e *EditSession) SetDraft(text string) {
	if e.messageID != "" {
		e.draft = text
	}
}

// Commit ends the session. changed is false when nothing was edited or the
// draft equals the original text.
func (e *EditSession) Commit() (messageID, text string, changed bool) {
	if e.messageID == "" {
		return "", "", false
	}
	messageID, text = e.messageID, e.draft
	changed = text != e.original
	e.Cancel()
	return messageID, text, changed
}

func (e *EditSession) Cancel() {
	e.messageID = ""
	e.original = ""
	e.draft = ""
}
