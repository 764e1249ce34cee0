package dae

// stub is a component with fixed declared sizes.
type stub struct {
	Base
	sizes StateSizes
	calls int
}

func newStub(a *Arena, alg, diff, roots int) *stub {
	s := &stub{sizes: StateSizes{AlgSize: alg, DiffSize: diff, DiffRoots: roots, JacSize: 2 * (alg + diff)}}
	a.Register(s, "stub")
	return s
}

func (s *stub) LocalSizes(SolverMode) StateSizes {
	s.calls++
	return s.sizes
}

func named[T Component](c T, name string) T {
	c.Node().SetName(name)
	return c
}

// catch returns the error a function panics with.
func catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}
