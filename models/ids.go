package models

import "github.com/google/uuid"

// ID prefixes for stored records
const (
	PrefixFile = "file"
	PrefixTask = "task"
	PrefixJob  = "job"
)

// NewID returns "<prefix>_<uuid>"
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
