// Package cliops exposes the four container-level operations spec.md
// §6 names as plain exported functions returning (exit code, error),
// so an external main package can bind flags to them without this
// module importing a flag-parsing library. It is a thin adapter over
// qmf and xgf; it holds no logic of its own.
package cliops

import (
	"fmt"
	"io"

	"github.com/nanoforge/qmfrt/qerr"
	"github.com/nanoforge/qmfrt/qmf"
	"github.com/nanoforge/qmfrt/quant"
	"github.com/nanoforge/qmfrt/weight"
	"github.com/nanoforge/qmfrt/xgf"
)

// Quantize reads every tensor out of an existing QMF container at
// inputPath, re-quantizes each into scheme, and writes the result to
// outputPath. It is the thin-adapter equivalent of spec.md §6's
// `quantize <fp32-checkpoint> <output-qmf>` operation: the "checkpoint"
// here is itself a QMF container (typically one holding only F32
// tensors), keeping this operation dependent on qmf alone rather than
// inventing a second, unspecified checkpoint format.
func Quantize(inputPath, outputPath string, scheme quant.Scheme) (int, error) {
	r, err := qmf.Open(inputPath)
	if err != nil {
		return 1, fmt.Errorf("cliops: quantize: %w", err)
	}
	defer r.Close()

	tensors := make([]*weight.Tensor, 0, len(r.Names()))
	for _, name := range r.Names() {
		t, err := r.Tensor(name)
		if err != nil {
			return 1, fmt.Errorf("cliops: quantize: reading %q: %w", name, err)
		}
		qt, err := t.Quantize(scheme)
		if err != nil {
			return 1, fmt.Errorf("cliops: quantize: encoding %q: %w", name, err)
		}
		tensors = append(tensors, qt)
	}

	if err := qmf.Write(outputPath, r.Metadata(), tensors); err != nil {
		return 1, fmt.Errorf("cliops: quantize: writing %s: %w", outputPath, err)
	}
	return 0, nil
}

// ImportXGF converts an XGF container at inputPath into a QMF container
// at outputPath. Per spec.md §6, a batch of unsupported tensor types is
// reported (to stderr) as exit code 2, distinct from every other
// failure mode's exit code 1.
func ImportXGF(inputPath, outputPath string, stderr io.Writer) (int, error) {
	result, err := xgf.Import(inputPath)
	if err != nil {
		var uerr *qerr.UnsupportedTypesError
		if asUnsupportedTypesError(err, &uerr) {
			fmt.Fprintf(stderr, "import-xgf: unsupported tensor types: %v\n", uerr.Types)
			return 2, err
		}
		return 1, fmt.Errorf("cliops: import-xgf: %w", err)
	}
	if err := qmf.Write(outputPath, result.Metadata, result.Tensors); err != nil {
		return 1, fmt.Errorf("cliops: import-xgf: writing %s: %w", outputPath, err)
	}
	return 0, nil
}

func asUnsupportedTypesError(err error, target **qerr.UnsupportedTypesError) bool {
	ue, ok := err.(*qerr.UnsupportedTypesError)
	if !ok {
		return false
	}
	*target = ue
	return true
}

// Inspect prints a QMF container's tensor count and total bytes to w;
// when verbose is set it also prints the metadata, and when verbose or
// withTensors is set, one name/scheme line per tensor.
func Inspect(path string, verbose, withTensors bool, w io.Writer) (int, error) {
	summary, err := qmf.Inspect(path)
	if err != nil {
		return 1, fmt.Errorf("cliops: inspect: %w", err)
	}
	fmt.Fprintf(w, "tensors: %d\n", summary.TensorCount)
	fmt.Fprintf(w, "total bytes: %d\n", summary.TotalBytes)
	if verbose {
		for k, v := range summary.Metadata {
			fmt.Fprintf(w, "metadata: %s = %s\n", k, v)
		}
	}
	if withTensors || verbose {
		for _, name := range summary.Names {
			fmt.Fprintf(w, "  %s\t%s\n", name, summary.Schemes[name])
		}
	}
	return 0, nil
}

// Verify runs qmf.Validate against path and reports any issues found to
// stderr. It returns exit code 0 if the validator found nothing wrong,
// 1 otherwise, per spec.md §6.
func Verify(path string, stderr io.Writer) (int, error) {
	issues, err := qmf.Validate(path)
	if err != nil {
		return 1, fmt.Errorf("cliops: verify: %w", err)
	}
	if len(issues) == 0 {
		return 0, nil
	}
	for _, issue := range issues {
		fmt.Fprintf(stderr, "verify: %s\n", issue)
	}
	return 1, nil
}
