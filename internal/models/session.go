package models

import "strings"

// Session holds the credentials of the logged-in account.
type Session struct {
	AccessToken string `json:"accessToken"`
	Instance    string `json:"instance"`
}

// Valid reports whether both the token and the instance are present.
func (s Session) Valid() bool {
	return s.AccessToken != "" && s.Instance != ""
}

// AppCredentials are the client id and secret returned when registering the
// application with an instance.
type AppCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// MediaFile is a local file selected for upload.
type MediaFile struct {
	Name string
	Data []byte
}

// UploadedMedia is the server's record of an uploaded attachment.
type UploadedMedia struct {
	ID         string `json:"id"`
	PreviewURL string `json:"previewUrl"`
}

// NormalizeInstanceURL reduces an instance address to its bare host form:
// "https://example.social/", "http://example.social" and "example.social"
// all become "example.social".
func NormalizeInstanceURL(instance string) string {
	s := strings.TrimSpace(instance)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https://"):
		s = s[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		s = s[len("http://"):]
	}
	return strings.TrimSuffix(s, "/")
}
