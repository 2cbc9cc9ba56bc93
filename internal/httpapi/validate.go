package httpapi

import (
	"regexp"
	"strings"

	"github.com/pcahill/chartroom/internal/chat"
)

// verticalWhitespace matches characters that would break single-line
// rendering of names and titles.
var verticalWhitespace = regexp.MustCompile(`[\n\v\f\r\x{0085}\x{2028}\x{2029}]`)

var usernameChars = regexp.MustCompile(`^[A-Za-z0-9-_.]+$`)

func validateDisplayText(field, s string) error {
	if len(s) < 2 || len(s) > 63 {
		return chat.Validationf("%s must be 2-63 characters", field)
	}
	if verticalWhitespace.MatchString(s) {
		return chat.Validationf("%s can not contain special characters", field)
	}
	if strings.TrimSpace(s) == "" {
		return chat.Validationf("%s can not be all spaces", field)
	}
	return nil
}

// ValidateTitle checks a conversation title.
func ValidateTitle(title string) error {
	return validateDisplayText("Title", title)
}

// ValidateNickname checks a participant nickname.
func ValidateNickname(nickname string) error {
	return validateDisplayText("Username", nickname)
}

// ValidateTag checks a conversation tag.
func ValidateTag(tag string) error {
	return validateDisplayText("Tag", tag)
}

// ValidateUsername checks an account username at registration.
func ValidateUsername(username string) error {
	if len(username) < 2 || len(username) > 63 {
		return chat.Validationf("Username must be 2-63 characters")
	}
	if !usernameChars.MatchString(username) {
		return chat.Validationf("Username can not contain special characters")
	}
	return nil
}

// ValidatePassword checks an account password at registration.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return chat.Validationf("Password must be at least 8 characters")
	}
	return nil
}
