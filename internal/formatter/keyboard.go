package formatter

import (
	"encoding/json"
	"strconv"

	"github.com/go-telegram/bot/models"

	appmodels "github.com/mixelka/gmailbot/pkg/models"
)

const categoriesPerRow = 2

func button(text string, data appmodels.CallbackData) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: EncodeCallback(data)}
}

func openButton(openURL string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: "Open", URL: openURL}
}

// BuildKeyboard creates the full action keyboard, with the category picker when requested
func BuildKeyboard(id int64, openURL string, includeCategories bool) *models.InlineKeyboardMarkup {
	rows := [][]models.InlineKeyboardButton{
		{
			openButton(openURL),
			button("Archive", appmodels.CallbackData{Action: appmodels.CallbackArchive, NotificationID: id}),
			button("Trash", appmodels.CallbackData{Action: appmodels.CallbackTrash, NotificationID: id}),
			button("Not-Interested", appmodels.CallbackData{Action: appmodels.CallbackNotInterested, NotificationID: id}),
		},
		{
			button("Mark Important", appmodels.CallbackData{Action: appmodels.CallbackImportant, NotificationID: id}),
		},
	}

	if includeCategories {
		rows = append(rows, categoryRows(id)...)
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func categoryRows(id int64) [][]models.InlineKeyboardButton {
	var rows [][]models.InlineKeyboardButton
	for i, category := range appmodels.Categories {
		if i%categoriesPerRow == 0 {
			rows = append(rows, nil)
		}
		last := len(rows) - 1
		rows[last] = append(rows[last], button(category, appmodels.CallbackData{
			Action:         appmodels.CallbackCategory,
			NotificationID: id,
			Arg:            strconv.Itoa(i),
		}))
	}
	return rows
}

// BuildConfirmTrashKeyboard asks to confirm a trash action
func BuildConfirmTrashKeyboard(id int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{{
		button("Confirm Trash", appmodels.CallbackData{Action: appmodels.CallbackTrashConfirm, NotificationID: id}),
		button("Cancel", appmodels.CallbackData{Action: appmodels.CallbackTrashCancel, NotificationID: id}),
	}}}
}

// BuildOpenWithUndoKeyboard is shown after archive, trash or mute
func BuildOpenWithUndoKeyboard(id int64, openURL, undoTarget string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{{
		openButton(openURL),
		button("Undo", appmodels.CallbackData{Action: appmodels.CallbackUndo, NotificationID: id, Arg: undoTarget}),
	}}}
}

// BuildNotInterestedPicker lets the user choose what to mute
func BuildNotInterestedPicker(id int64) *models.InlineKeyboardMarkup {
	mute := func(text, scope string) []models.InlineKeyboardButton {
		return []models.InlineKeyboardButton{
			button(text, appmodels.CallbackData{Action: appmodels.CallbackMute, NotificationID: id, Arg: scope}),
		}
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		mute("Mute sender+category", appmodels.MuteSenderCategory),
		mute("Mute sender (all)", appmodels.MuteSender),
		mute("Mute domain (all)", appmodels.MuteDomain),
		{button("Cancel", appmodels.CallbackData{Action: appmodels.CallbackMuteCancel, NotificationID: id})},
	}}
}

// EncodeCallback encodes callback data to string
func EncodeCallback(data appmodels.CallbackData) string {
	b, _ := json.Marshal(data)
	return string(b)
}

// DecodeCallback decodes callback data from string
func DecodeCallback(data string) (appmodels.CallbackData, error) {
	var cb appmodels.CallbackData
	err := json.Unmarshal([]byte(data), &cb)
	return cb, err
}
