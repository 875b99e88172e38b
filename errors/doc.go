// Package errors provides structured error types for the engine.
//
// Every error carries a Phase (where in the pipeline it happened) and a
// Kind (what went wrong), so callers can match with errors.Is against a
// prototype without string comparison:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindUnsupported}) {
//	    // module uses a feature the lowerer rejects
//	}
//
// The two phases the host usually distinguishes are PhaseDecode
// (create-source failures) and PhaseCompile (first-call lowering
// failures); both are deterministic and permanent for a given module.
// PhaseHost marks pre-call rejections that never set the trap flag.
package errors
