package coordinator_test

import (
	"context"
	"encoding/hex"
	"math/big"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/catalogfi/hermes/pkg/bridge"
	"github.com/catalogfi/hermes/pkg/coordinator"
	"github.com/catalogfi/hermes/pkg/escrow"
	"github.com/catalogfi/hermes/pkg/htlc"
	"github.com/catalogfi/hermes/pkg/model"
	"github.com/catalogfi/hermes/pkg/orderbook"
)

var _ = Describe("Coordinator", func() {
	It("should drive a matched swap to completion", func() {
		h := newHarness(coordinator.ClaimDstFirst, 10*time.Second)
		h.start()
		defer h.stop()

		a, _ := h.publishPair()
		h.lockSource(a)

		Eventually(func() bool {
			swap := h.swap(a.OrderHash)
			return swap.Phase == model.PhaseLocked && swap.SrcDeployed
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())

		// The coordinator mirrors the source escrow onto the destination
		// chain on its own.
		Eventually(func() bool {
			return h.swap(a.OrderHash).DstDeployed
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())
		Expect(h.swap(a.OrderHash).DstCreateTxHash).ToNot(BeEmpty())

		// Open the private window on the destination and the public window
		// on the source, the relayer claims both.
		h.sui.Advance(21 * time.Minute)
		h.eth.Advance(21 * time.Minute)

		Eventually(func() model.Phase {
			return h.phase(a.OrderHash)
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(model.PhaseCompleted))

		Expect(h.escrowStatus(h.eth, a.OrderHash)).To(Equal(escrow.Withdrawn))
		Expect(h.escrowStatus(h.sui, a.OrderHash)).To(Equal(escrow.Withdrawn))

		swap := h.swap(a.OrderHash)
		Expect(swap.SrcClaimTxHash).ToNot(BeEmpty())
		Expect(swap.DstClaimTxHash).ToNot(BeEmpty())

		// Source leg pays the counterparty, its safety deposit goes to the
		// public caller.
		Expect(h.eth.Vault().Balance(aliceEth).Int64()).To(Equal(int64(0)))
		Expect(h.eth.Vault().Balance(bobEth).Int64()).To(Equal(int64(1000)))
		Expect(h.eth.Vault().Balance(relayerEth).Int64()).To(Equal(int64(100050)))

		// Destination leg pays the maker net of fees.
		Expect(h.sui.Vault().Balance(aliceSui).Int64()).To(Equal(int64(495)))
		Expect(h.sui.Vault().Balance(treasury).Int64()).To(Equal(int64(3)))
		Expect(h.sui.Vault().Balance(integrator).Int64()).To(Equal(int64(2)))
		Expect(h.sui.Vault().Balance(relayerSui).Int64()).To(Equal(int64(99500)))
	})

	It("should complete under the src-first claim policy as well", func() {
		h := newHarness(coordinator.ClaimSrcFirst, 10*time.Second)
		h.start()
		defer h.stop()

		a, _ := h.publishPair()
		h.lockSource(a)

		Eventually(func() bool {
			return h.swap(a.OrderHash).DstDeployed
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())

		h.sui.Advance(21 * time.Minute)
		h.eth.Advance(21 * time.Minute)

		Eventually(func() model.Phase {
			return h.phase(a.OrderHash)
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(model.PhaseCompleted))
		Expect(h.escrowStatus(h.eth, a.OrderHash)).To(Equal(escrow.Withdrawn))
		Expect(h.escrowStatus(h.sui, a.OrderHash)).To(Equal(escrow.Withdrawn))
	})

	It("should retry a stalled claim once the source window opens", func() {
		h := newHarness(coordinator.ClaimDstFirst, 10*time.Second)
		h.start()
		defer h.stop()

		a, _ := h.publishPair()
		h.lockSource(a)

		Eventually(func() bool {
			return h.swap(a.OrderHash).DstDeployed
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())

		// Only the destination window opens, the source claim keeps being
		// rejected and the swap sticks in revealing.
		h.sui.Advance(11 * time.Minute)

		Eventually(func() bool {
			swap := h.swap(a.OrderHash)
			return swap.Phase == model.PhaseRevealing && swap.DstWithdrawn
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())
		Expect(h.escrowStatus(h.eth, a.OrderHash)).To(Equal(escrow.Active))

		// Once the public window opens on the source the stall sweep picks
		// the claim back up via publicWithdraw.
		h.eth.Advance(21 * time.Minute)

		Eventually(func() model.Phase {
			return h.phase(a.OrderHash)
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(model.PhaseCompleted))
		Expect(h.escrowStatus(h.eth, a.OrderHash)).To(Equal(escrow.Withdrawn))
		Expect(h.eth.Vault().Balance(relayerEth).Int64()).To(Equal(int64(100050)))
	})

	It("should flag a timed out swap and refund both legs", func() {
		h := newHarness(coordinator.ClaimDstFirst, 150*time.Millisecond)
		h.start()
		defer h.stop()

		a, b := h.publishPair()
		h.lockSource(a)

		Eventually(func() bool {
			return h.swap(a.OrderHash).DstDeployed
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())

		// No secret is ever revealed, the timeout sweep flags the swap and
		// raises an alert. The counter record goes down with it.
		Eventually(func() model.Phase {
			return h.phase(a.OrderHash)
		}, 3*time.Second, 20*time.Millisecond).Should(Equal(model.PhaseCancelled))
		Eventually(func() model.Phase {
			return h.phase(b.OrderHash)
		}, 3*time.Second, 20*time.Millisecond).Should(Equal(model.PhaseCancelled))
		Eventually(h.alerts.count, 3*time.Second, 20*time.Millisecond).Should(BeNumerically(">=", 1))

		// Refunds stay rejected until the cancellation timelocks elapse.
		Expect(h.escrowStatus(h.eth, a.OrderHash)).To(Equal(escrow.Active))

		h.eth.Advance(71 * time.Minute)
		h.sui.Advance(71 * time.Minute)

		Eventually(func() escrow.Status {
			return h.escrowStatus(h.eth, a.OrderHash)
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(escrow.Cancelled))
		Eventually(func() escrow.Status {
			return h.escrowStatus(h.sui, a.OrderHash)
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(escrow.Cancelled))

		// The maker gets the locked amount back, the public canceller earns
		// the source safety deposit, and the relayer recovers its own
		// destination funds in full.
		Eventually(func() int64 {
			return h.eth.Vault().Balance(aliceEth).Int64()
		}, 3*time.Second, 20*time.Millisecond).Should(Equal(int64(1000)))
		Expect(h.eth.Vault().Balance(relayerEth).Int64()).To(Equal(int64(100050)))
		Expect(h.sui.Vault().Balance(relayerSui).Int64()).To(Equal(int64(100000)))

		// Submitted refunds are remembered so later sweeps skip them.
		Eventually(func() bool {
			done, err := h.actions.CheckAction(coordinator.ActionCancelSrc, a.OrderHash.Hex())
			return err == nil && done
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())
		Eventually(func() bool {
			done, err := h.actions.CheckAction(coordinator.ActionCancelDst, a.OrderHash.Hex())
			return err == nil && done
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())
	})

	It("should settle the counter order's record alongside its pair", func() {
		h := newHarness(coordinator.ClaimDstFirst, 2*time.Second)
		h.start()
		defer h.stop()

		a, b := h.publishPair()
		h.lockSource(a)

		Eventually(func() bool {
			return h.swap(a.OrderHash).DstDeployed
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())

		h.sui.Advance(21 * time.Minute)
		h.eth.Advance(21 * time.Minute)

		Eventually(func() model.Phase {
			return h.phase(a.OrderHash)
		}, 1500*time.Millisecond, 20*time.Millisecond).Should(Equal(model.PhaseCompleted))

		// Only the initiating hash appears on-chain, the counter record
		// still completes with it and never drifts into the timeout sweep.
		Eventually(func() model.Phase {
			return h.phase(b.OrderHash)
		}, 1500*time.Millisecond, 20*time.Millisecond).Should(Equal(model.PhaseCompleted))
		Consistently(func() model.Phase {
			return h.phase(b.OrderHash)
		}, 2500*time.Millisecond, 100*time.Millisecond).Should(Equal(model.PhaseCompleted))
		Expect(h.alerts.count()).To(Equal(0))
	})

	It("should skip a claim the action store already records as submitted", func() {
		h := newHarness(coordinator.ClaimDstFirst, 10*time.Second)
		h.start()
		defer h.stop()

		a, _ := h.publishPair()
		h.lockSource(a)

		Eventually(func() bool {
			return h.swap(a.OrderHash).DstDeployed
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())

		// An earlier run already submitted the source claim, the store
		// remembers and no second withdrawal goes out.
		Expect(h.actions.StoreAction(coordinator.ActionClaimSrc, a.OrderHash.Hex())).To(BeNil())

		h.sui.Advance(21 * time.Minute)
		h.eth.Advance(21 * time.Minute)

		Eventually(func() bool {
			return h.swap(a.OrderHash).DstWithdrawn
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())
		Consistently(func() escrow.Status {
			return h.escrowStatus(h.eth, a.OrderHash)
		}, 500*time.Millisecond, 25*time.Millisecond).Should(Equal(escrow.Active))
	})

	It("should still claim the remaining leg when a secret is revealed after cancellation", func() {
		h := newHarness(coordinator.ClaimDstFirst, 150*time.Millisecond)
		h.start()
		defer h.stop()

		a, _ := h.publishPair()
		h.lockSource(a)

		Eventually(func() bool {
			return h.swap(a.OrderHash).DstDeployed
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())
		Eventually(func() model.Phase {
			return h.phase(a.OrderHash)
		}, 3*time.Second, 20*time.Millisecond).Should(Equal(model.PhaseCancelled))

		// The counterparty reveals by claiming the source escrow inside its
		// withdrawal window, long before any refund is possible.
		h.eth.Advance(11 * time.Minute)
		h.sui.Advance(11 * time.Minute)

		secret, err := hex.DecodeString(h.swap(a.OrderHash).Secret)
		Expect(err).To(BeNil())
		_, err = h.eth.Withdraw(context.Background(), a.OrderHash, bobEth, secret)
		Expect(err).To(BeNil())

		// The coordinator must not leave the funds one-sided, it claims the
		// destination leg even though the swap is already flagged.
		Eventually(func() escrow.Status {
			return h.escrowStatus(h.sui, a.OrderHash)
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(escrow.Withdrawn))

		// Cancelled is absorbing.
		Expect(h.phase(a.OrderHash)).To(Equal(model.PhaseCancelled))
		Expect(h.sui.Vault().Balance(aliceSui).Int64()).To(Equal(int64(495)))
	})

	It("should replay events missed while the coordinator was down", func() {
		h := newHarness(coordinator.ClaimDstFirst, 10*time.Second)
		h.start()

		a, _ := h.publishPair()
		h.stop()

		// The source escrow lands while no coordinator is running.
		h.lockSource(a)

		restarted := coordinator.New(h.config, orderbook.New(logger), h.bridges(), h.storage, h.actions, h.alerts, logger)
		Expect(restarted.Start()).To(BeNil())
		defer restarted.Stop()

		Eventually(func() bool {
			swap := h.swap(a.OrderHash)
			return swap.Phase == model.PhaseLocked && swap.DstDeployed
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())

		h.sui.Advance(21 * time.Minute)
		h.eth.Advance(21 * time.Minute)

		Eventually(func() model.Phase {
			return h.phase(a.OrderHash)
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(model.PhaseCompleted))

		// The restarted coordinator only knows the order through the
		// durable record, the destination escrow it created must still
		// carry the right amount, receiver and fees.
		Expect(h.escrowStatus(h.sui, a.OrderHash)).To(Equal(escrow.Withdrawn))
		Expect(h.sui.Vault().Balance(aliceSui).Int64()).To(Equal(int64(495)))
		Expect(h.sui.Vault().Balance(treasury).Int64()).To(Equal(int64(3)))
		Expect(h.sui.Vault().Balance(integrator).Int64()).To(Equal(int64(2)))
	})

	It("should ignore escrow events for orders it does not coordinate", func() {
		h := newHarness(coordinator.ClaimDstFirst, 10*time.Second)
		h.start()
		defer h.stop()

		stranger := ethToSuiOrder()
		stranger.Maker = "0xStranger"
		stranger.OrderHash = stranger.Hash()
		_, hashlock, err := htlc.NewSecret()
		Expect(err).To(BeNil())

		h.eth.Vault().Credit(stranger.Maker, big.NewInt(2000))
		_, err = h.eth.CreateSrcEscrow(context.Background(), bridge.CreateSrcEscrow{
			OrderHash:     stranger.OrderHash,
			Hashlock:      hashlock,
			Maker:         stranger.Maker,
			Taker:         bobEth,
			Amount:        stranger.SrcAmount,
			SafetyDeposit: h.deposit,
			Delays:        h.delays,
			Caller:        stranger.Maker,
		})
		Expect(err).To(BeNil())

		// The foreign escrow never produces a coordination record and does
		// not disturb a real swap published afterwards.
		a, _ := h.publishPair()
		h.lockSource(a)

		Eventually(func() bool {
			return h.swap(a.OrderHash).DstDeployed
		}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())

		_, err = h.storage.Swap(stranger.OrderHash.Hex())
		Expect(err).ToNot(BeNil())
	})
})
