package ident

import (
	"testing"

	"github.com/matryer/is"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	is := is.New(t)

	s := EncodeString(2, 90125)

	typeCode, id, err := Decode(s)
	is.NoErr(err)
	is.Equal(typeCode, uint16(2))
	is.Equal(id, uint64(90125))
}

func TestDecodeRejectsForeignPrefix(t *testing.T) {
	is := is.New(t)

	_, _, err := Decode("f47ac10b-58cc-4372-a567-0e02b2c3d479")
	is.Equal(err, ErrBadPrefix)
}

func TestDecodeRejectsNonUUIDs(t *testing.T) {
	is := is.New(t)

	_, _, err := Decode("bob-the-builder")
	is.Equal(err, ErrNotAUUID)
}

func TestZeroPrefixDetection(t *testing.T) {
	is := is.New(t)

	is.True(HasZeroPrefix("00000000-0000-4372-a567-0e02b2c3d479"))
	is.True(!HasZeroPrefix(EncodeString(3, 17)))
	is.True(!HasZeroPrefix("not a uuid"))
}

func TestIDPortionIgnoresPrefix(t *testing.T) {
	is := is.New(t)

	id, err := IDPortion("00000000-0000-4372-0000-00000000002a")
	is.NoErr(err)
	is.Equal(id, uint64(42))
}
