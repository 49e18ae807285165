package model

import "github.com/oklog/ulid/v2"

// NewID generates a run identifier. ULIDs sort lexically by creation time,
// which keeps run listings and log topics in submission order.
func NewID() string {
	return ulid.Make().String()
}
