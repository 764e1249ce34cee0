package models_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/matrix"
	"github.com/san-kum/griddae/internal/models"
)

func laidOut(c dae.Component, cj float64) *dae.StateData {
	n := dae.Layout(c, dae.DAE).States()
	sd := &dae.StateData{State: make([]float64, n), DState: make([]float64, n), SeqID: 1, CJ: cj}
	dae.PullState(c, sd.State, sd.DState, dae.DAE)
	return sd
}

func fullMask(c dae.Component) []int {
	m := make([]int, dae.TotalSizes(c, dae.DAE).Roots())
	for i := range m {
		m[i] = 1
	}
	return m
}

var _ = Describe("Exciter limits", func() {
	var (
		ex *models.Exciter
		sd *dae.StateData
	)

	BeforeEach(func() {
		ex = models.NewExciter(dae.NewArena())
		ex.SetOperatingPoint(2, 1)
		sd = laidOut(ex, 10)
	})

	It("stays within limits inside the check band", func() {
		sd.State[0] = ex.Vrmax + 5e-6
		Expect(ex.RootCheck(models.BusInputs(0.5, 0, 1), sd, dae.DAE, dae.FullCheck)).To(Equal(dae.NoChange))
		Expect(ex.OutsideLimits()).To(BeFalse())
	})

	It("clamps above Vrmax and freezes its row", func() {
		in := models.BusInputs(0.5, 0, 1)
		sd.State[0] = ex.Vrmax + 2e-5

		Expect(ex.RootCheck(in, sd, dae.DAE, dae.FullCheck)).To(Equal(dae.JacobianChange))
		Expect(ex.OutsideLimits()).To(BeTrue())
		Expect(ex.DiscreteMode()).To(Equal("saturated_high"))
		Expect(ex.Field()).To(Equal(ex.Vrmax))

		dae.PullState(ex, sd.State, sd.DState, dae.DAE)
		sink := matrix.NewSparse(2)
		ex.JacobianElements(in, sd, sink, []int{dae.NullLocation}, dae.DAE)
		Expect(sink.Size()).To(Equal(1))
		Expect(sink.At(0, 0)).To(Equal(-10.0))

		resid := make([]float64, 1)
		ex.Residual(in, sd, resid, dae.DAE)
		Expect(resid[0]).To(BeZero())
	})

	It("releases once the demand comes back inside", func() {
		sd.State[0] = ex.Vrmax + 2e-5
		Expect(ex.RootCheck(models.BusInputs(0.5, 0, 1), sd, dae.DAE, dae.FullCheck)).To(Equal(dae.JacobianChange))
		dae.PullState(ex, sd.State, sd.DState, dae.DAE)

		Expect(ex.RootCheck(models.BusInputs(0.5, 0, 1), sd, dae.DAE, dae.FullCheck)).To(Equal(dae.NoChange))
		Expect(ex.RootCheck(models.BusInputs(1, 0, 1), sd, dae.DAE, dae.FullCheck)).To(Equal(dae.JacobianChange))
		Expect(ex.OutsideLimits()).To(BeFalse())
		Expect(ex.RootCheck(models.BusInputs(1, 0, 1), sd, dae.DAE, dae.FullCheck)).To(Equal(dae.NoChange))
	})

	It("ignores low-voltage-only checks", func() {
		sd.State[0] = ex.Vrmax + 1
		Expect(ex.RootCheck(models.BusInputs(0.5, 0, 1), sd, dae.DAE, dae.LowVoltageCheck)).To(Equal(dae.NoChange))
	})

	It("has a root that falls as the field approaches the limit", func() {
		in := models.BusInputs(1, 0, 1)
		roots := make([]float64, 1)
		prev := 0.0
		for i, ef := range []float64{1, 2, 3, 4, 5} {
			sd.State[0] = ef
			ex.RootTest(in, sd, roots, dae.DAE)
			if i > 0 {
				Expect(roots[0]).To(BeNumerically("<", prev))
			}
			prev = roots[0]
		}
		Expect(prev).To(BeNumerically(">", 0))

		sd.State[0] = ex.Vrmax + 2e-4
		ex.RootTest(in, sd, roots, dae.DAE)
		Expect(roots[0]).To(BeNumerically("<", 0))
	})

	It("treats a repeated trigger as a no-op", func() {
		in := models.BusInputs(0.5, 0, 1)
		Expect(ex.Set("ef", ex.Vrmax+1e-3, 0)).To(Succeed())
		m := fullMask(ex)

		Expect(ex.RootTrigger(1, in, m, dae.DAE)).To(Equal(dae.JacobianChange))
		Expect(ex.RootTrigger(1, in, m, dae.DAE)).To(Equal(dae.NoChange))
		Expect(ex.Field()).To(Equal(ex.Vrmax))
	})
})

var _ = Describe("Motor stall", func() {
	var m *models.Motor

	BeforeEach(func() {
		m = models.NewMotor(dae.NewArena())
		Expect(m.Set("slip", 1-5e-5, 0)).To(Succeed())
		laidOut(m, 0)
	})

	It("stalls at standstill and does not re-trigger", func() {
		in := models.BusInputs(1, 0, 1)
		mask := fullMask(m)

		Expect(m.RootTrigger(0, in, mask, dae.DAE)).To(Equal(dae.JacobianChange))
		Expect(m.Stalled()).To(BeTrue())
		Expect(m.Get("slip", 0)).To(Equal(1.0))
		Expect(m.RootTrigger(0, in, mask, dae.DAE)).To(Equal(dae.NoChange))
	})

	It("ignores triggers for roots it does not own", func() {
		Expect(m.RootTrigger(0, models.BusInputs(1, 0, 1), []int{0}, dae.DAE)).To(Equal(dae.NoChange))
		Expect(m.Stalled()).To(BeFalse())
	})

	It("emits only the -cj diagonal while stalled", func() {
		Expect(m.RootTrigger(0, models.BusInputs(1, 0, 1), fullMask(m), dae.DAE)).To(Equal(dae.JacobianChange))
		sd := laidOut(m, 4)
		sink := matrix.NewSparse(2)
		m.JacobianElements(models.BusInputs(1, 0, 1), sd, sink, []int{0}, dae.DAE)
		Expect(sink.Elements()).To(Equal([]matrix.Element{{Row: 0, Col: 0, Value: -4}}))
	})

	It("restarts once the voltage can carry the load at standstill", func() {
		mask := fullMask(m)
		Expect(m.RootTrigger(0, models.BusInputs(1, 0, 1), mask, dae.DAE)).To(Equal(dae.JacobianChange))

		sd := laidOut(m, 0)
		Expect(m.RootCheck(models.BusInputs(1.2, 0, 1), sd, dae.DAE, dae.ReversibleOnly)).To(Equal(dae.NoChange))
		Expect(m.RootCheck(models.BusInputs(1.2, 0, 1), sd, dae.DAE, dae.FullCheck)).To(Equal(dae.JacobianChange))
		Expect(m.Stalled()).To(BeFalse())
	})
})

var _ = Describe("Root slots across generators", func() {
	It("gives every limit its own slot", func() {
		arena := dae.NewArena()
		grid := dae.NewGroup(arena, "grid")
		g1, g2 := models.NewGenerator(arena), models.NewGenerator(arena)
		grid.AddChild(g1)
		grid.AddChild(g2)
		grid.AddChild(models.NewMotor(arena))

		Expect(dae.Layout(grid, dae.DAE).Roots()).To(Equal(5))
		entries, err := dae.RootMap(grid, dae.DAE, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(5))
		for i, e := range entries {
			Expect(e.Slot).To(Equal(i))
		}
		Expect(entries[2].Owner).To(Equal(g2.Exciter().ID()))
		Expect(entries[4].Mode).To(Equal("running"))
	})
})
