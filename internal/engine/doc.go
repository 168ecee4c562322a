// Package engine contains the fallback orchestrator and its pure helpers.
//
// A request moves through validation, candidate selection and an ordered
// attempt loop: backends from the registry are tried in descending quality
// order, each under its own timeout and memory reservation, until one
// succeeds. Failures advance the chain and are recorded for diagnostics;
// only the final outcome reaches the caller. The memory estimator and tile
// sizer are pure functions so the resource decisions stay deterministic and
// testable.
package engine
