// Package kernel provides the reference host kernel set: the
// expression generator's Calculate/Assign and raw element-wise
// bindings, a generic matrix multiply, and the reduction ops, plus
// DefaultLibrary wiring them all into a compile.Library in a sensible
// selection order.
package kernel

import "github.com/myelin-ml/myelin/compile"

// DefaultLibrary returns a Library carrying every kernel this package
// implements, one Calculate/Assign expression kernel, one expression
// kernel per raw element-wise op type (for anything fusion left
// unfused), a generic MatMul, and the four reduction kernels.
func DefaultLibrary() *compile.Library {
	lib := compile.NewLibrary()

	lib.Register(NewExpressionKernel("Calculate"))
	lib.Register(NewExpressionKernel("Assign"))

	for op := range elementwiseArity {
		lib.Register(NewExpressionKernel(op))
	}

	lib.Register(MatMulKernel{})

	for _, op := range []string{"Sum", "Product", "MaxReduce", "MinReduce"} {
		lib.Register(NewReduceKernel(op))
	}

	return lib
}
