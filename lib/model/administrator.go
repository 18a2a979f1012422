package model

// Administrator is an authenticated principal recognized by AUTHINFO.
// CredentialHash is a bcrypt hash (see lib/auth); there is no
// separate salt field since bcrypt embeds its own.
type Administrator struct {
	Username       string
	CredentialHash []byte

	CanApproveAny           bool
	CanCancel               bool
	CanInject               bool
	CanCreateGroup          bool
	CanDeleteGroup          bool
	CanCheckGroups          bool
	LocalAuthenticationOnly bool

	// Moderates is the set of newsgroups this principal may approve
	// pending posts for, independent of CanApproveAny.
	Moderates map[NewsgroupName]bool
}

// CanApprove reports whether this principal may approve a pending
// post to the given group.
func (a *Administrator) CanApprove(group NewsgroupName) bool {
	if a.CanApproveAny || a.CanInject {
		return true
	}
	return a.Moderates[group]
}
