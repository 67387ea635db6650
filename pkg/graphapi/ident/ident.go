// Package ident implements the packed uuid format used to address graph
// objects. A graph uuid consists of a six byte magic prefix, a big endian
// sixteen bit type code and a big endian sixty four bit object id.
package ident

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

var magic = [6]byte{0x64, 0x69, 0x77, 0x30, 0x67, 0x77}

var (
	ErrBadPrefix = errors.New("identifier does not carry the graph uuid prefix")
	ErrNotAUUID  = errors.New("identifier is not a uuid")
)

// Encode packs a type code and an object id into a graph uuid.
func Encode(typeCode uint16, id uint64) uuid.UUID {
	var u uuid.UUID

	copy(u[0:6], magic[:])
	binary.BigEndian.PutUint16(u[6:8], typeCode)
	binary.BigEndian.PutUint64(u[8:16], id)

	return u
}

// EncodeString is Encode followed by canonical string formatting.
func EncodeString(typeCode uint16, id uint64) string {
	return Encode(typeCode, id).String()
}

// Decode unpacks a graph uuid into its type code and object id. Identifiers
// that parse as uuids but lack the magic prefix fail with ErrBadPrefix, and
// anything else fails with ErrNotAUUID.
func Decode(s string) (uint16, uint64, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return 0, 0, ErrNotAUUID
	}

	if !bytes.Equal(u[0:6], magic[:]) {
		return 0, 0, ErrBadPrefix
	}

	return binary.BigEndian.Uint16(u[6:8]), binary.BigEndian.Uint64(u[8:16]), nil
}

// IsUUID reports whether s parses as a uuid of any kind, valid graph prefix
// or not.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// HasZeroPrefix reports whether the six prefix bytes of a parsed uuid are all
// zero. Such identifiers are undecodable but still carry an id portion.
func HasZeroPrefix(s string) bool {
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}

	for _, b := range u[0:6] {
		if b != 0 {
			return false
		}
	}

	return true
}

// IDPortion extracts the trailing sixty four bit id from any parsed uuid,
// regardless of prefix validity.
func IDPortion(s string) (uint64, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return 0, ErrNotAUUID
	}

	return binary.BigEndian.Uint64(u[8:16]), nil
}
