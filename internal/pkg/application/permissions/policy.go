package permissions

import (
	"bytes"
	_ "embed"
	"io"
)

//go:embed authz.rego
var defaultPolicy []byte

// DefaultPolicy returns the built in flag policy, granting system to service
// viewers, owner to members acting on their own objects, member to other
// authenticated members and public to everyone else.
func DefaultPolicy() io.Reader {
	return bytes.NewBuffer(defaultPolicy)
}
