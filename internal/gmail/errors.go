package gmail

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

var (
	// ErrCursorInvalid is returned when Gmail no longer knows the start history ID
	ErrCursorInvalid = errors.New("history cursor invalid")
	// ErrAuth is returned when the account credential is expired, revoked or lacks scope
	ErrAuth = errors.New("gmail authentication failed")
)

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
}

// classify tags auth failures with ErrAuth. Other errors are returned as is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isAuthError(err) {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	return err
}

// classifyHistory also tags a 404 as ErrCursorInvalid
func classifyHistory(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrCursorInvalid, err)
	}
	return classify(err)
}

func isAuthError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return true
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if rateLimitReasons[item.Reason] {
				return false
			}
		}
		return true
	}
	return false
}
