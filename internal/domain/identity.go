package domain

// IdentityGrant is the artifact a client presents for an identity-provider flow.
// Exactly one of Code or Credential is set.
type IdentityGrant struct {
	Code       string
	Credential string
}

// Empty reports whether no artifact was supplied.
func (g IdentityGrant) Empty() bool {
	return g.Code == "" && g.Credential == ""
}

// ExternalIdentity is the verified result of a grant exchange.
type ExternalIdentity struct {
	Email   string
	Name    string
	Subject string
	Picture string
}
