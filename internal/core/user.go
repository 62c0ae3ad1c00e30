package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type (
	// User mirrors the identity provider's view of the signed-in account.
	User struct {
		UID           string `json:"uid"`
		DisplayName   string `json:"displayName"`
		Email         string `json:"email"`
		PhotoURL      string `json:"photoURL"`
		EmailVerified bool   `json:"emailVerified"`
	}

	// PublicUser is the profile other users can see.
	PublicUser struct {
		UID         string `json:"uid"`
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
		PhotoURL    string `json:"photoURL"`
	}

	// UsernameReservation maps a normalized username to its owner.
	UsernameReservation struct {
		UID       string    `json:"uid"`
		Username  string    `json:"username"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

// ValidateUsername checks the 3-20 character alphanumeric/underscore format.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return ValidationError("El nombre de usuario es obligatorio")
	}
	if !usernamePattern.MatchString(username) {
		return ValidationError("El nombre de usuario debe tener entre 3 y 20 caracteres y solo puede contener letras, números y guiones bajos")
	}
	return nil
}

// NormalizeUsername returns the key used for uniqueness checks.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// CleanUsername strips a leading "@".
func CleanUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// FormatUsername renders a username with a leading "@".
func FormatUsername(username string) string {
	clean := CleanUsername(username)
	if clean == "" {
		return ""
	}
	return "@" + clean
}

// ProfilePath returns the public profile route for username.
func ProfilePath(username string) string {
	return "/profile/" + CleanUsername(username)
}

// UsernameCandidates builds suggestion candidates from a base name. suffix is
// the random number appended to the last candidate. Bases shorter than three
// characters once cleaned yield no candidates.
func UsernameCandidates(base string, suffix int) []string {
	base = nonAlphanumeric.ReplaceAllString(strings.ToLower(base), "")
	if len(base) < 3 {
		return nil
	}
	all := []string{
		base,
		base + "123",
		base + "_user",
		"user_" + base,
		fmt.Sprintf("%s%d", base, suffix),
	}
	out := make([]string, 0, len(all))
	for _, c := range all {
		if len(c) <= 20 {
			out = append(out, c)
		}
	}
	return out
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)
