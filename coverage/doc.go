// Package coverage computes per-base read depth over genomic intervals.
//
// Coverage is the single entry point used by both the bedcov command and
// the calibration engine, so that the policy deciding which reads count
// toward depth lives in one place (Filter).  Reads are supplied through
// the Source interface; NewProviderSource adapts a bamprovider.Provider.
package coverage
