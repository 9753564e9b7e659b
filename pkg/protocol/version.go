package protocol

import "fmt"

// Version is the protocol revision this build of the host and SDK speaks.
// It changes only when the schema changes incompatibly; additive changes rely on
// unknown-field skipping instead.
const Version uint32 = 1

// VersionRange is an inclusive range of protocol versions.
type VersionRange struct {
	Min uint32
	Max uint32
}

// SupportedVersions is the range of plugin protocol versions the host accepts.
var SupportedVersions = VersionRange{Min: 1, Max: Version}

// Contains reports whether v lies within the range.
func (r VersionRange) Contains(v uint32) bool {
	return v >= r.Min && v <= r.Max
}

func (r VersionRange) String() string {
	if r.Min == r.Max {
		return fmt.Sprintf("%d", r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// Output formats plugins can declare support for.
const (
	FormatDefault = "default"
	FormatLong    = "long"
)

// Features a plugin may list in FormatsResponse.Capabilities.
const (
	FeatureDecorate      = "decorate"
	FeatureBatchDecorate = "batch_decorate"
	FeatureFormatField   = "format_field"
	FeatureActions       = "actions"
)
