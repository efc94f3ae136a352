package browserenv

// Profile seeds the stand-in globals. Empty fields leave the matching
// property undefined, which is itself useful audit signal.
type Profile struct {
	UserAgent string   `json:"user_agent" yaml:"user_agent" toml:"user_agent"`
	Platform  string   `json:"platform" yaml:"platform" toml:"platform"`
	Language  string   `json:"language" yaml:"language" toml:"language"`
	Languages []string `json:"languages" yaml:"languages" toml:"languages"`
	Vendor    string   `json:"vendor" yaml:"vendor" toml:"vendor"`

	Href     string `json:"href" yaml:"href" toml:"href"`
	Referrer string `json:"referrer" yaml:"referrer" toml:"referrer"`
	Cookie   string `json:"cookie" yaml:"cookie" toml:"cookie"`

	// HTML is the document snapshot exposed through document queries.
	HTML string `json:"html" yaml:"html" toml:"html"`

	LocalStorage   map[string]string `json:"local_storage" yaml:"local_storage" toml:"local_storage"`
	SessionStorage map[string]string `json:"session_storage" yaml:"session_storage" toml:"session_storage"`
}

// DefaultProfile returns a desktop Chrome profile.
func DefaultProfile() Profile {
	return Profile{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		Platform:  "Win32",
		Language:  "en-US",
		Languages: []string{"en-US", "en"},
		Vendor:    "Google Inc.",
		Href:      "https://www.example.com/",
	}
}
