package models

// CallbackAction type of callback action
type CallbackAction string

const (
	CallbackArchive       CallbackAction = "a"
	CallbackTrash         CallbackAction = "t" // Ask for confirmation
	CallbackTrashConfirm  CallbackAction = "tc"
	CallbackTrashCancel   CallbackAction = "tcan"
	CallbackNotInterested CallbackAction = "n"  // Show scope picker
	CallbackMute          CallbackAction = "ns" // Arg: scope code
	CallbackMuteCancel    CallbackAction = "ncan"
	CallbackUndo          CallbackAction = "u" // Arg: undo target
	CallbackImportant     CallbackAction = "mi"
	CallbackCategory      CallbackAction = "c" // Arg: category index
)

// Scope codes carried in mute callbacks
const (
	MuteSenderCategory = "sc"
	MuteSender         = "ss"
	MuteDomain         = "sd"
)

// Undo targets
const (
	UndoArchive       = "a"
	UndoTrash         = "t"
	UndoNotInterested = "n"
)

// CallbackData structure for inline button callback
type CallbackData struct {
	Action         CallbackAction `json:"a"`
	NotificationID int64          `json:"n"`
	Arg            string         `json:"x,omitempty"`
}
