// Package suppressor implements the residual suppressor (spec
// component C5): a deterministic, per-sample multiplicative gain
// applied to the NLMS error signal while the aligned reference is
// active, with no lookahead or spectral processing.
//
// This is the one place spec.md §9 explicitly resolves a discrepancy
// in the corpus it was distilled from (a 0.9-multiply gate vs. a
// "1 - 0.1" gate): the fixed formula below is the 1 - s form.
package suppressor

// activityThreshold is the aligned-reference amplitude above which a
// sample is considered "far-end active" and subject to suppression.
const activityThreshold = 1e-3

// attenuation is s in e_n *= (1 - s).
const attenuation = 0.1

// Suppressor applies the fixed residual-suppression gain. It carries
// no internal state; it is a pure per-sample function, kept as a type
// so it composes with the rest of the pipeline's value-typed
// components and so a future spectral suppressor could be swapped in
// behind the same Apply signature.
type Suppressor struct{}

// New returns a Suppressor. There is nothing to configure.
func New() Suppressor { return Suppressor{} }

// Apply gates errBlock in place: for each sample n, if
// |alignedRef[n]| > 1e-3 the sample is attenuated by (1 - 0.1);
// otherwise it is left unchanged. errBlock and alignedRef must be the
// same length.
func (Suppressor) Apply(errBlock, alignedRef []float32) {
	for i, r := range alignedRef {
		if r > activityThreshold || r < -activityThreshold {
			errBlock[i] *= 1 - attenuation
		}
	}
}
