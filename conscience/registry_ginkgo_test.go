package conscience

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry", func() {
	var (
		reg  *Registry
		expr *ScoreExpr
	)

	BeforeEach(func() {
		var err error
		expr, err = ParseScoreExpr("cpu:1")
		Expect(err).NotTo(HaveOccurred())
		reg = NewRegistry("rawx", expr, time.Minute, 100, time.Minute, nil)
	})

	Describe("Register", func() {
		It("tracks a new service with its computed score", func() {
			snap := reg.Register(ServiceInfo{
				ID:   ServiceID{Type: "rawx", Addr: "10.0.0.1:6010"},
				Tags: map[string]float64{"cpu": 80},
			}, false)
			Expect(snap.Score).To(BeEquivalentTo(80))
			Expect(reg.Count(false)).To(Equal(1))
		})

		It("preserves the score when keepScore is set", func() {
			id := ServiceID{Type: "rawx", Addr: "10.0.0.1:6010"}
			reg.Register(ServiceInfo{ID: id, Tags: map[string]float64{"cpu": 80}}, false)
			snap := reg.Register(ServiceInfo{ID: id, Tags: map[string]float64{"cpu": 0}}, true)
			Expect(snap.Score).To(BeEquivalentTo(80))
		})
	})

	Describe("Lock/Unlock", func() {
		It("excludes a locked service from Best", func() {
			id := ServiceID{Type: "rawx", Addr: "10.0.0.1:6010"}
			reg.Register(ServiceInfo{ID: id, Tags: map[string]float64{"cpu": 90}}, false)
			Expect(reg.Lock(id)).To(BeTrue())

			_, found := reg.Best()
			Expect(found).To(BeFalse())

			Expect(reg.Unlock(id)).To(BeTrue())
			best, found := reg.Best()
			Expect(found).To(BeTrue())
			Expect(best.ID).To(Equal(id))
		})
	})

	Describe("RemoveExpired", func() {
		It("drops services whose score_expiration has elapsed", func() {
			shortLived := NewRegistry("rawx", expr, time.Nanosecond, 100, time.Minute, nil)
			shortLived.Register(ServiceInfo{ID: ServiceID{Type: "rawx", Addr: "a"}, Tags: nil}, false)
			time.Sleep(time.Millisecond)
			Expect(shortLived.RemoveExpired()).To(Equal(1))
			Expect(shortLived.Count(true)).To(Equal(0))
		})
	})
})
