package escrow_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/catalogfi/hermes/pkg/escrow"
)

var _ = Describe("Registry", func() {
	It("should hand out distinct ids per order", func() {
		registry := escrow.NewRegistry()
		first, err := registry.Create(randomHash())
		Expect(err).To(BeNil())
		second, err := registry.Create(randomHash())
		Expect(err).To(BeNil())
		Expect(first).NotTo(Equal(second))
	})

	It("should reject a duplicate order hash", func() {
		registry := escrow.NewRegistry()
		order := randomHash()

		id, err := registry.Create(order)
		Expect(err).To(BeNil())
		Expect(registry.Exists(order)).To(BeTrue())

		_, err = registry.Create(order)
		Expect(err).To(MatchError(escrow.ErrDuplicateOrder))

		// The first registration stays intact, lookups keep resolving even
		// after the escrow completes.
		got, ok := registry.Lookup(order)
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(id))
	})

	It("should not know unregistered orders", func() {
		registry := escrow.NewRegistry()
		Expect(registry.Exists(randomHash())).To(BeFalse())
		_, ok := registry.Lookup(randomHash())
		Expect(ok).To(BeFalse())
	})
})
