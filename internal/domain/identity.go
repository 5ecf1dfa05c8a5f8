package domain

// Identity is the opaque identifier of the user a request runs on behalf of.
// It is the only authorization subject and is never cached across requests.
type Identity string

func (id Identity) String() string { return string(id) }
