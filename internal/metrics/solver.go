package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/san-kum/griddae/internal/dae"
)

const namespace = "griddae"

// Solver holds the driver statistics of one simulation.
type Solver struct {
	reg *prometheus.Registry

	// ResidualEvals counts residual assemblies.
	ResidualEvals prometheus.Counter
	// JacobianEvals counts Jacobian assemblies.
	JacobianEvals prometheus.Counter
	// NewtonIterations observes the iterations of every converged step.
	NewtonIterations prometheus.Histogram
	// RootTriggers counts root trigger rounds by resulting change code.
	RootTriggers *prometheus.CounterVec
	// OffsetRebuilds counts layout refreshes by kind (states, jacobian).
	OffsetRebuilds *prometheus.CounterVec
}

// NewSolver registers the solver collectors on a fresh registry.
func NewSolver() *Solver {
	return NewSolverWithRegistry(prometheus.NewRegistry())
}

func NewSolverWithRegistry(reg *prometheus.Registry) *Solver {
	f := promauto.With(reg)
	return &Solver{
		reg: reg,
		ResidualEvals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "residual_evaluations_total",
			Help:      "Residual assemblies of the root component",
		}),
		JacobianEvals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "jacobian_evaluations_total",
			Help:      "Jacobian assemblies of the root component",
		}),
		NewtonIterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "newton_iterations",
			Help:      "Newton iterations per accepted step",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 20},
		}),
		RootTriggers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roots",
			Name:      "triggers_total",
			Help:      "Root trigger rounds by change code",
		}, []string{"code"}),
		OffsetRebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "rebuilds_total",
			Help:      "Offset recomputations by kind",
		}, []string{"kind"}),
	}
}

func (s *Solver) Registry() *prometheus.Registry { return s.reg }

func (s *Solver) ResidualEvaluated()          { s.ResidualEvals.Inc() }
func (s *Solver) JacobianEvaluated()          { s.JacobianEvals.Inc() }
func (s *Solver) NewtonSolved(iterations int) { s.NewtonIterations.Observe(float64(iterations)) }
func (s *Solver) OffsetsRebuilt(kind string)  { s.OffsetRebuilds.WithLabelValues(kind).Inc() }

func (s *Solver) RootTriggered(code dae.ChangeCode) {
	s.RootTriggers.WithLabelValues(code.String()).Inc()
}

// Snapshot is a plain copy of the collected values.
type Snapshot struct {
	Residuals  float64
	Jacobians  float64
	Steps      uint64
	Iterations float64
	Triggers   map[string]float64
	Rebuilds   map[string]float64
}

// MeanIterations is the average Newton iteration count per step.
func (s Snapshot) MeanIterations() float64 {
	if s.Steps == 0 {
		return 0
	}
	return s.Iterations / float64(s.Steps)
}

// Snapshot gathers the registry into a Snapshot.
func (s *Solver) Snapshot() (Snapshot, error) {
	snap := Snapshot{
		Triggers: make(map[string]float64),
		Rebuilds: make(map[string]float64),
	}
	families, err := s.reg.Gather()
	if err != nil {
		return snap, err
	}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			switch fam.GetName() {
			case namespace + "_solver_residual_evaluations_total":
				snap.Residuals = m.GetCounter().GetValue()
			case namespace + "_solver_jacobian_evaluations_total":
				snap.Jacobians = m.GetCounter().GetValue()
			case namespace + "_solver_newton_iterations":
				snap.Steps = m.GetHistogram().GetSampleCount()
				snap.Iterations = m.GetHistogram().GetSampleSum()
			case namespace + "_roots_triggers_total":
				snap.Triggers[label(m, "code")] = m.GetCounter().GetValue()
			case namespace + "_layout_rebuilds_total":
				snap.Rebuilds[label(m, "kind")] = m.GetCounter().GetValue()
			}
		}
	}
	return snap, nil
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
