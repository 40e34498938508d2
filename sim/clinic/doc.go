// Package clinic models a minor treatment clinic on top of the sim engine:
// patients arrive, queue by triage priority for a treatment bay, may give up
// waiting, are treated and leave. Trial batches independent seeded runs.
package clinic
