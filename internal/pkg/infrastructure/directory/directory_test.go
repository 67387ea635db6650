package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"
)

func TestAliasLookupIsCaseInsensitive(t *testing.T) {
	is := is.New(t)

	d := NewInMemoryDirectory().Register("Ada", 1001)

	id, err := d.MemberByAlias(context.Background(), "ada")
	is.NoErr(err)
	is.Equal(id, uint64(1001))

	id, err = d.MemberByAlias(context.Background(), "ADA")
	is.NoErr(err)
	is.Equal(id, uint64(1001))
}

func TestUnknownAliasesAreNotFound(t *testing.T) {
	is := is.New(t)

	d := NewInMemoryDirectory()

	_, err := d.MemberByAlias(context.Background(), "nobody")
	is.True(errors.Is(err, ErrAliasNotFound))
}
