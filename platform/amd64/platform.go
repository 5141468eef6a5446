package amd64

import (
	"github.com/pattyshack/starling/architecture"
	"github.com/pattyshack/starling/platform"
)

type Platform struct {
	os platform.OperatingSystemName
}

func NewPlatform(os platform.OperatingSystemName) platform.Platform {
	return Platform{
		os: os,
	}
}

func (Platform) ArchitectureName() platform.ArchitectureName {
	return platform.Amd64
}

func (p Platform) OperatingSystemName() platform.OperatingSystemName {
	return p.os
}

func (Platform) ArchitectureRegisters() *architecture.RegisterSet {
	return ArchitectureRegisters
}

func (Platform) StackFrameAlignment() int {
	return 16
}

func (Platform) SupportsCompressedReferences() bool {
	return true
}
