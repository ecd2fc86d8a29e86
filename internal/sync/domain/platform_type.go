package domain

// PlatformType represents an external calendar platform.
type PlatformType string

const (
	// PlatformGoogle is Google Calendar (OAuth2 + JSON REST with sync tokens).
	PlatformGoogle PlatformType = "google"
	// PlatformNaver is Naver Calendar (ICS over HTTP form posts).
	PlatformNaver PlatformType = "naver"
	// PlatformKakao is Kakao Calendar (no public calendar API yet).
	PlatformKakao PlatformType = "kakao"
	// PlatformCalDAV is generic CalDAV (Fastmail, Nextcloud, self-hosted).
	PlatformCalDAV PlatformType = "caldav"
)

// String returns the string representation of the platform type.
func (p PlatformType) String() string {
	return string(p)
}

// IsValid returns true if the platform type is recognized.
func (p PlatformType) IsValid() bool {
	switch p {
	case PlatformGoogle, PlatformNaver, PlatformKakao, PlatformCalDAV:
		return true
	default:
		return false
	}
}

// DisplayName returns a human-readable name for the platform.
func (p PlatformType) DisplayName() string {
	switch p {
	case PlatformGoogle:
		return "Google Calendar"
	case PlatformNaver:
		return "Naver Calendar"
	case PlatformKakao:
		return "Kakao Calendar"
	case PlatformCalDAV:
		return "CalDAV"
	default:
		return string(p)
	}
}

// AllPlatformTypes returns all supported platform types.
func AllPlatformTypes() []PlatformType {
	return []PlatformType{
		PlatformGoogle,
		PlatformNaver,
		PlatformKakao,
		PlatformCalDAV,
	}
}
