package model

// Identity describes who performed an action.  Every connection carries a
// weak, network-derived fingerprint (ClientID) and, when the caller presented
// a valid bearer token, a strong account identifier (UserID).  Rate limiting,
// voting and ban checks all key off this pair.
//
// Fields:
//  ClientID – network fingerprint (proxy-provided real IP or remote address).
//             Spoofable; only suitable for anonymous rate limiting.
//  UserID   – authenticated account id from the token subject.  Empty for
//             anonymous callers.
type Identity struct {
    ClientID string `json:"client_id"`
    UserID   string `json:"user_id,omitempty"`
}

// HasUser reports whether the identity carries a strong account id.
func (i Identity) HasUser() bool { return i.UserID != "" }

// Matches reports whether two identities refer to the same submitter.  A
// strong match (both sides carrying the same non-empty UserID) wins; when
// either side is anonymous the comparison falls back to the weak ClientID.
func (i Identity) Matches(other Identity) bool {
    if i.UserID != "" && other.UserID != "" {
        return i.UserID == other.UserID
    }
    return i.ClientID != "" && i.ClientID == other.ClientID
}
