package types

import (
	"fmt"
)

type ViewerKind string

const (
	ViewerAnonymous ViewerKind = "anonymous"
	ViewerMember    ViewerKind = "member"
	ViewerSystem    ViewerKind = "system"
)

// Viewer is the identity on whose behalf a request is evaluated. All
// permission decisions receive the viewer, never raw credentials.
type Viewer interface {
	Kind() ViewerKind
	MemberID() uint64
	Authenticated() bool
	DebugEnabled() bool

	// CacheKey returns a stable identifier for this viewer, suitable for
	// namespacing cached values so that no two viewers ever share entries.
	CacheKey() string
}

type anonymousViewer struct{}

func (anonymousViewer) Kind() ViewerKind    { return ViewerAnonymous }
func (anonymousViewer) MemberID() uint64    { return 0 }
func (anonymousViewer) Authenticated() bool { return false }
func (anonymousViewer) DebugEnabled() bool  { return false }
func (anonymousViewer) CacheKey() string    { return "anonymous" }

// NewAnonymousViewer returns the viewer used when a request carries no
// credentials at all.
func NewAnonymousViewer() Viewer {
	return &anonymousViewer{}
}

type memberViewer struct {
	id        uint64
	loggedOut bool
	debug     bool
}

// MemberDecoratorFunc modifies a member viewer during construction.
type MemberDecoratorFunc func(*memberViewer)

// LoggedOut marks the viewer as a known member whose session has expired.
// Such viewers are identified but not authenticated.
func LoggedOut() MemberDecoratorFunc {
	return func(v *memberViewer) {
		v.loggedOut = true
	}
}

// WithDebug grants the viewer access to pipeline internals in responses.
func WithDebug() MemberDecoratorFunc {
	return func(v *memberViewer) {
		v.debug = true
	}
}

func NewMemberViewer(id uint64, decorators ...MemberDecoratorFunc) Viewer {
	v := &memberViewer{id: id}
	for _, d := range decorators {
		d(v)
	}
	return v
}

func (v *memberViewer) Kind() ViewerKind    { return ViewerMember }
func (v *memberViewer) MemberID() uint64    { return v.id }
func (v *memberViewer) Authenticated() bool { return !v.loggedOut }
func (v *memberViewer) DebugEnabled() bool  { return v.debug }
func (v *memberViewer) CacheKey() string {
	return fmt.Sprintf("member:%d", v.id)
}

type systemViewer struct {
	name string
}

// NewSystemViewer returns the trusted viewer used by backend services that
// authenticate with a service key.
func NewSystemViewer(name string) Viewer {
	return &systemViewer{name: name}
}

func (v *systemViewer) Kind() ViewerKind    { return ViewerSystem }
func (v *systemViewer) MemberID() uint64    { return 0 }
func (v *systemViewer) Authenticated() bool { return true }
func (v *systemViewer) DebugEnabled() bool  { return true }
func (v *systemViewer) CacheKey() string {
	return fmt.Sprintf("system:%s", v.name)
}

func (v *systemViewer) String() string {
	return fmt.Sprintf("system viewer %s", v.name)
}
