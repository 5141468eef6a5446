package util

import (
	"errors"
	"strings"
	"testing"

	"github.com/pattyshack/gt/parseutil"
)

func TestCompilationErrors(t *testing.T) {
	emitter := &parseutil.Emitter{}
	if _, ok := FirstErrorKind(emitter.Errors()); ok {
		t.Fatalf("expected no error kind")
	}

	emitter.EmitErrors(errors.New("not a compilation error"))
	EmitRootAccuracyViolation(emitter, parseutil.Location{}, "temp %s", "v1")
	EmitMalformedGraph(emitter, parseutil.Location{}, "cycle")

	kind, ok := FirstErrorKind(emitter.Errors())
	if !ok || kind != RootAccuracy {
		t.Errorf("expected first kind to be %s, got %s", RootAccuracy, kind)
	}

	if !HasErrorKind(emitter.Errors(), MalformedGraph) {
		t.Errorf("expected malformed graph error")
	}

	message := emitter.Errors()[1].Error()
	if !strings.HasPrefix(message, "root accuracy violation: temp v1") {
		t.Errorf("unexpected message: %s", message)
	}
}
