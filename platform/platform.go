package platform

import (
	"github.com/pattyshack/starling/architecture"
)

type ArchitectureName string
type OperatingSystemName string

const (
	Amd64 = ArchitectureName("amd64")

	Linux = OperatingSystemName("linux")
)

type Platform interface {
	ArchitectureName() ArchitectureName
	OperatingSystemName() OperatingSystemName

	ArchitectureRegisters() *architecture.RegisterSet

	// In bytes.
	StackFrameAlignment() int

	// When true, NarrowReference outputs (and narrow temps) are supported.
	SupportsCompressedReferences() bool
}
