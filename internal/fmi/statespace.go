package fmi

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StateSpace is an in-process linear unit: der = A x + B u, y = C x + D u.
// It enforces the sub-mode machine like a compiled unit would.
type StateSpace struct {
	a, b, c, d *mat.Dense
	n, m, p    int

	mode SubMode
	time float64
	x, u []float64

	// Counters exposed for inspection.
	EventEntries int
	Steps        int
}

// NewStateSpace builds a unit from its matrices. b, c and d may be nil when
// the unit has no inputs or outputs.
func NewStateSpace(a, b, c, d *mat.Dense) (*StateSpace, error) {
	n, nc := a.Dims()
	if n != nc {
		return nil, fmt.Errorf("%w: A is %dx%d", ErrSize, n, nc)
	}
	s := &StateSpace{a: a, b: b, c: c, d: d, n: n}
	if b != nil {
		r, m := b.Dims()
		if r != n {
			return nil, fmt.Errorf("%w: B has %d rows, want %d", ErrSize, r, n)
		}
		s.m = m
	}
	if c != nil {
		p, cc := c.Dims()
		if cc != n {
			return nil, fmt.Errorf("%w: C has %d columns, want %d", ErrSize, cc, n)
		}
		s.p = p
	}
	if d != nil {
		r, cc := d.Dims()
		if r != s.p || cc != s.m {
			return nil, fmt.Errorf("%w: D is %dx%d, want %dx%d", ErrSize, r, cc, s.p, s.m)
		}
	}
	s.x = make([]float64, s.n)
	s.u = make([]float64, s.m)
	return s, nil
}

// Lag returns a first-order unit tracking its single input with time
// constant t and gain k; its output is the state.
func Lag(t, k float64) *StateSpace {
	s, err := NewStateSpace(
		mat.NewDense(1, 1, []float64{-1 / t}),
		mat.NewDense(1, 1, []float64{k / t}),
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{0}),
	)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *StateSpace) NumStates() int  { return s.n }
func (s *StateSpace) NumInputs() int  { return s.m }
func (s *StateSpace) NumOutputs() int { return s.p }
func (s *StateSpace) Mode() SubMode   { return s.mode }
func (s *StateSpace) Time() float64   { return s.time }

func (s *StateSpace) EnterMode(m SubMode) error {
	if !CanEnter(s.mode, m) {
		return &CallError{Call: "EnterMode(" + m.String() + ")", Mode: s.mode}
	}
	if m == Event {
		s.EventEntries++
	}
	s.mode = m
	return nil
}

func (s *StateSpace) SetTime(t float64) error {
	if err := check("SetTime", s.mode); err != nil {
		return err
	}
	s.time = t
	return nil
}

func (s *StateSpace) SetStates(x []float64) error {
	if err := check("SetStates", s.mode); err != nil {
		return err
	}
	if len(x) != s.n {
		return fmt.Errorf("%w: %d states, want %d", ErrSize, len(x), s.n)
	}
	copy(s.x, x)
	return nil
}

func (s *StateSpace) GetStates(x []float64) error {
	if err := check("GetStates", s.mode); err != nil {
		return err
	}
	if len(x) != s.n {
		return fmt.Errorf("%w: %d states, want %d", ErrSize, len(x), s.n)
	}
	copy(x, s.x)
	return nil
}

func (s *StateSpace) SetInputs(u []float64) error {
	if err := check("SetInputs", s.mode); err != nil {
		return err
	}
	if len(u) != s.m {
		return fmt.Errorf("%w: %d inputs, want %d", ErrSize, len(u), s.m)
	}
	copy(s.u, u)
	return nil
}

func (s *StateSpace) GetDerivatives(dx []float64) error {
	if err := check("GetDerivatives", s.mode); err != nil {
		return err
	}
	if len(dx) != s.n {
		return fmt.Errorf("%w: %d derivatives, want %d", ErrSize, len(dx), s.n)
	}
	s.affine(dx, s.a, s.b, s.x)
	return nil
}

func (s *StateSpace) GetOutputs(y []float64) error {
	if err := check("GetOutputs", s.mode); err != nil {
		return err
	}
	if len(y) != s.p {
		return fmt.Errorf("%w: %d outputs, want %d", ErrSize, len(y), s.p)
	}
	if s.p > 0 {
		s.affine(y, s.c, s.d, s.x)
	}
	return nil
}

func (s *StateSpace) DirectionalDerivative(dx, dder []float64) error {
	if err := check("DirectionalDerivative", s.mode); err != nil {
		return err
	}
	if len(dx) != s.n || len(dder) != s.n {
		return fmt.Errorf("%w: seed of %d, want %d", ErrSize, len(dx), s.n)
	}
	out := mat.NewVecDense(s.n, dder)
	out.MulVec(s.a, mat.NewVecDense(s.n, dx))
	return nil
}

func (s *StateSpace) CompletedIntegratorStep() error {
	if err := check("CompletedIntegratorStep", s.mode); err != nil {
		return err
	}
	s.Steps++
	return nil
}

// affine writes dst = sx*x + su*u.
func (s *StateSpace) affine(dst []float64, sx, su *mat.Dense, x []float64) {
	if len(dst) == 0 {
		return
	}
	out := mat.NewVecDense(len(dst), dst)
	out.MulVec(sx, mat.NewVecDense(s.n, x))
	if su != nil && s.m > 0 {
		var bu mat.VecDense
		bu.MulVec(su, mat.NewVecDense(s.m, s.u))
		out.AddVec(out, &bu)
	}
}
