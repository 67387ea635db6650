package types

// Well known graph object types. The gateway configuration may register any
// number of additional types, but these three take part in reference
// resolution and must always be present.
const (
	TypeMember  string = "member"
	TypePost    string = "post"
	TypePicture string = "picture"
)

// ObjectStruct pairs a graph object type with the name of the API
// implementation that handles it. A resolvable ObjectStruct is always backed
// by an object model and a permissions model pair.
type ObjectStruct struct {
	Type string
	API  string
}

// ObjectRef identifies a single graph object. ReferenceID holds the decoded
// numeric id for well formed graph uuids, or the raw identifier for
// references that fall back to the post rule.
type ObjectRef struct {
	UUID        string
	ReferenceID string
	Type        string
}

// PermissionFlag is an opaque token computed from (viewer, object, method).
// The pipeline never interprets its value beyond equality and membership
// checks against property metadata.
type PermissionFlag string

const (
	FlagNone   PermissionFlag = ""
	FlagPublic PermissionFlag = "public"
	FlagMember PermissionFlag = "member"
	FlagOwner  PermissionFlag = "owner"
	FlagSystem PermissionFlag = "system"
)

// PropertyList is an ordered, duplicate free sequence of property names.
type PropertyList []string

// NewPropertyList creates a list from names, dropping duplicates while
// preserving first occurrence order.
func NewPropertyList(names ...string) PropertyList {
	pl := PropertyList{}
	return pl.Add(names...)
}

func (pl PropertyList) Contains(name string) bool {
	for _, n := range pl {
		if n == name {
			return true
		}
	}
	return false
}

// Add appends any names not already present and returns the extended list.
func (pl PropertyList) Add(names ...string) PropertyList {
	for _, n := range names {
		if n == "" || pl.Contains(n) {
			continue
		}
		pl = append(pl, n)
	}
	return pl
}

// Remove returns a copy of the list without the given names.
func (pl PropertyList) Remove(names ...string) PropertyList {
	result := make(PropertyList, 0, len(pl))

	for _, existing := range pl {
		keep := true
		for _, n := range names {
			if existing == n {
				keep = false
				break
			}
		}
		if keep {
			result = append(result, existing)
		}
	}

	return result
}

func (pl PropertyList) Clone() PropertyList {
	c := make(PropertyList, len(pl))
	copy(c, pl)
	return c
}
