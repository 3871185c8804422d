package auth

// Policy answers authorization questions that go beyond authentication.
type Policy interface {
	// CanEndMeeting reports whether the identity may force-close a meeting.
	CanEndMeeting(identity, meetingCode string) bool
}

// AllowAll permits everything. Used until a real role model is wired in.
type AllowAll struct{}

func (AllowAll) CanEndMeeting(string, string) bool { return true }
