package domain

// Identity is the current user as reported by the host runtime's identity service.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UserProfile is the document stored under Users/{id}.
// FCMToken and FCMTokenTimestamp are only ever written together via SetToken.
type UserProfile struct {
	ID                string  `json:"id" firestore:"id"`
	Email             string  `json:"email" firestore:"email"`
	MemberID          *string `json:"memberId,omitempty" firestore:"memberId,omitempty"`
	FCMToken          string  `json:"fcmToken,omitempty" firestore:"fcmToken,omitempty"`
	FCMTokenTimestamp int64   `json:"fcmTokenTimestamp,omitempty" firestore:"fcmTokenTimestamp,omitempty"`
	Notify            *bool   `json:"notify,omitempty" firestore:"notify,omitempty"`
	Timestamp         int64   `json:"timestamp,omitempty" firestore:"timestamp,omitempty"`
}

// Token is a push registration token together with the wall-clock time it was issued,
// in Unix milliseconds.
type Token struct {
	Value    string `json:"fcmToken" firestore:"fcmToken"`
	IssuedAt int64  `json:"fcmTokenTimestamp" firestore:"fcmTokenTimestamp"`
}

// TokenSummary is the document stored under Members/{memberId}/profile/fcmToken.
type TokenSummary = Token

// HasToken reports whether the profile carries a push token.
func (p *UserProfile) HasToken() bool {
	return p.FCMToken != ""
}

// CurrentToken returns the token fields of the profile.
func (p *UserProfile) CurrentToken() Token {
	return Token{Value: p.FCMToken, IssuedAt: p.FCMTokenTimestamp}
}

// SetToken assigns the token and its issue time together.
func (p *UserProfile) SetToken(t Token) {
	p.FCMToken = t.Value
	p.FCMTokenTimestamp = t.IssuedAt
}

// NotificationsEnabled reports whether the user opted into notifications.
// An unset preference counts as enabled.
func (p *UserProfile) NotificationsEnabled() bool {
	return p.Notify == nil || *p.Notify
}

// Clone returns a deep copy of the profile.
func (p *UserProfile) Clone() *UserProfile {
	c := *p
	if p.MemberID != nil {
		c.MemberID = StringPtr(*p.MemberID)
	}
	if p.Notify != nil {
		v := *p.Notify
		c.Notify = &v
	}
	return &c
}
