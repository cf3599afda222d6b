package lifecycle

import (
	"fmt"
	"time"
)

// Concrete index names are timestamped so a migration can build the next
// generation alongside the live one. Readers and writers only ever address
// the aliases.

const (
	writeSuffix = "write"
	readSuffix  = "read"

	timestampLayout = "20060102150405"
)

// BaseName is the persisted naming root every index and alias of a document
// type derives from. The trailing "document" token is part of the on-cluster
// contract; existing deployments address their indices through it.
func BaseName(prefix, docType string) string {
	return fmt.Sprintf("%s_%sdocument", prefix, docType)
}

// IndexName returns a fresh concrete index name for a document type.
func IndexName(prefix, docType string, t time.Time) string {
	return fmt.Sprintf("%s_%s", BaseName(prefix, docType), t.UTC().Format(timestampLayout))
}

// WriteAlias returns the alias live indexing writes through.
func WriteAlias(prefix, docType string) string {
	return fmt.Sprintf("%s_%s", BaseName(prefix, docType), writeSuffix)
}

// ReadAlias returns the alias queries read through.
func ReadAlias(prefix, docType string) string {
	return fmt.Sprintf("%s_%s", BaseName(prefix, docType), readSuffix)
}

// IndexPattern matches every generation of a document type's indices,
// aliases excluded.
func IndexPattern(prefix, docType string) string {
	return fmt.Sprintf("%s_*", BaseName(prefix, docType))
}
