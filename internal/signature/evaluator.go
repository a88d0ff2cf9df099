package signature

import (
	"github.com/Aman-CERP/indexwarden/internal/document"
)

// Evaluator decides whether a document needs reindexing, beyond the bare
// IsStale flag. The audit loop uses it to classify drift; indexing consumers
// use it to skip physical writes that would change nothing.
type Evaluator struct {
	calc          *Calculator
	schemaVersion int
}

// NewEvaluator wires an evaluator to a calculator and the deployment's
// target index schema version.
func NewEvaluator(calc *Calculator, schemaVersion int) *Evaluator {
	return &Evaluator{calc: calc, schemaVersion: schemaVersion}
}

// SchemaVersion returns the target index schema version.
func (e *Evaluator) SchemaVersion() int {
	return e.schemaVersion
}

// NeedsReindex reports whether the document's stored index state no longer
// matches what indexing it today would produce. An analyzer-version change
// counts as drift here even when content is untouched.
func (e *Evaluator) NeedsReindex(d *document.Document) bool {
	st := d.Index
	if st.IsStale {
		return true
	}
	if st.SchemaVersion < e.schemaVersion {
		return true
	}
	if st.AnalyzerVersion != e.calc.AnalyzerVersion() {
		return true
	}
	if st.IndexedContentHash != d.ContentHash {
		return true
	}
	sig := e.calc.Compute(d)
	return st.TokenHash != sig.TokenHash
}
