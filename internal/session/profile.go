package session

import (
	"net/url"
	"strings"

	"github.com/rivo/uniseg"
)

// Field limits, in user-perceived characters.
const (
	MaxDisplayName   = 50
	MaxContactHandle = 32
	MaxFunFact       = 140
	MaxGenderTag     = 40
	MaxAvatarRef     = 512
	MaxTextLength    = 2000
)

// Profile is what a participant supplies at admission. It never changes
// afterwards.
type Profile struct {
	DisplayName   string
	ContactHandle string
	GenderTag     string
	FunFact       string
	AvatarRef     string
}

// PublicProfile is the part of a Profile shown to other participants.
// The contact handle is deliberately absent.
type PublicProfile struct {
	DisplayName string `json:"alias"`
	GenderTag   string `json:"gender,omitempty"`
	FunFact     string `json:"funFact,omitempty"`
	AvatarRef   string `json:"avatarUrl,omitempty"`
}

// Public strips private fields.
func (p Profile) Public() PublicProfile {
	return PublicProfile{
		DisplayName: p.DisplayName,
		GenderTag:   p.GenderTag,
		FunFact:     p.FunFact,
		AvatarRef:   p.AvatarRef,
	}
}

// Normalize trims every field and checks presence and length limits.
func (p Profile) Normalize() (Profile, error) {
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.ContactHandle = strings.TrimSpace(p.ContactHandle)
	p.GenderTag = strings.TrimSpace(p.GenderTag)
	p.FunFact = strings.TrimSpace(p.FunFact)
	p.AvatarRef = strings.TrimSpace(p.AvatarRef)

	checks := []struct {
		field    string
		value    string
		limit    int
		required bool
	}{
		{"alias", p.DisplayName, MaxDisplayName, true},
		{"phone", p.ContactHandle, MaxContactHandle, true},
		{"gender", p.GenderTag, MaxGenderTag, false},
		{"funFact", p.FunFact, MaxFunFact, false},
		{"avatarUrl", p.AvatarRef, MaxAvatarRef, false},
	}
	for _, c := range checks {
		if c.value == "" {
			if c.required {
				return Profile{}, &ValidationError{Field: c.field, Reason: "is required"}
			}
			continue
		}
		if uniseg.GraphemeClusterCount(c.value) > c.limit {
			return Profile{}, &ValidationError{Field: c.field, Reason: "is too long"}
		}
	}

	if p.AvatarRef != "" && !validAvatarRef(p.AvatarRef) {
		return Profile{}, &ValidationError{Field: "avatarUrl", Reason: "must be a site path or http(s) URL"}
	}
	return p, nil
}

func validAvatarRef(ref string) bool {
	if strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "//") {
		return true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// truncate cuts s to at most limit grapheme clusters.
func truncate(s string, limit int) string {
	rest := s
	state := -1
	for n := 0; rest != ""; n++ {
		if n == limit {
			return s[:len(s)-len(rest)]
		}
		_, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
	}
	return s
}

// cleanText trims and truncates chat text. ok is false when nothing
// remains to send.
func cleanText(text string) (cleaned string, ok bool) {
	cleaned = strings.TrimSpace(text)
	if cleaned == "" {
		return "", false
	}
	cleaned = strings.TrimSpace(truncate(cleaned, MaxTextLength))
	return cleaned, true
}
