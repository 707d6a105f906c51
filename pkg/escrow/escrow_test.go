package escrow_test

import (
	"math/big"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ethereum/go-ethereum/common"

	"github.com/catalogfi/hermes/pkg/escrow"
	"github.com/catalogfi/hermes/pkg/htlc"
)

var (
	maker      = "0xmaker"
	taker      = "0xtaker"
	admin      = "0xadmin"
	protocol   = "0xprotocol"
	integrator = "0xintegrator"
	relayer    = "0xrelayer"

	delays = htlc.Delays{
		Withdrawal:         30 * time.Minute,
		PublicWithdrawal:   time.Hour,
		Cancellation:       2 * time.Hour,
		PublicCancelBuffer: 30 * time.Minute,
		Rescue:             48 * time.Hour,
	}
)

var _ = Describe("Escrow", func() {
	var (
		vault      *escrow.Vault
		deployedAt time.Time
		secret     [32]byte
		hashlock   common.Hash
	)

	BeforeEach(func() {
		vault = escrow.NewVault()
		deployedAt = time.Now()
		s, h, err := htlc.NewSecret()
		Expect(err).To(BeNil())
		secret = s
		hashlock = h
	})

	newSource := func(amount, deposit int64) *escrow.Escrow {
		order := randomHash()
		esc, err := escrow.NewSource(order, hashlock, maker, taker, big.NewInt(amount), big.NewInt(deposit), deployedAt, delays, admin)
		Expect(err).To(BeNil())
		return esc
	}

	Context("when withdrawing inside the withdrawal window", func() {
		It("should pay the taker the locked amount plus the safety deposit", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Withdrawal + time.Second)

			Expect(esc.Withdraw(now, taker, secret[:], vault)).To(Succeed())
			Expect(esc.Status()).To(Equal(escrow.Withdrawn))
			Expect(vault.Balance(taker).Int64()).To(Equal(int64(1050)))
			Expect(esc.Secret()).To(Equal(secret[:]))
		})

		It("should reject a wrong caller", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Withdrawal + time.Second)

			err := esc.Withdraw(now, maker, secret[:], vault)
			Expect(err).To(MatchError(escrow.ErrUnauthorized))
			Expect(esc.Status()).To(Equal(escrow.Active))
			Expect(vault.Balance(maker).Sign()).To(BeZero())
		})

		It("should reject a wrong secret", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Withdrawal + time.Second)
			wrong := secret
			wrong[0] ^= 0xff

			err := esc.Withdraw(now, taker, wrong[:], vault)
			Expect(err).To(MatchError(escrow.ErrWrongSecret))
			Expect(esc.Status()).To(Equal(escrow.Active))
		})
	})

	Context("when withdrawing outside the withdrawal window", func() {
		It("should reject a withdrawal before the window opens", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Withdrawal - time.Minute)

			err := esc.Withdraw(now, taker, secret[:], vault)
			Expect(err).To(MatchError(escrow.ErrOutsideWindow))
		})

		It("should reject a withdrawal at or after cancellation start", func() {
			esc := newSource(1000, 50)

			err := esc.Withdraw(deployedAt.Add(delays.Cancellation), taker, secret[:], vault)
			Expect(err).To(MatchError(escrow.ErrOutsideWindow))
		})
	})

	Context("when withdrawing publicly", func() {
		It("should pay the deposit to the calling third party", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.PublicWithdrawal + time.Second)

			Expect(esc.PublicWithdraw(now, relayer, secret[:], vault)).To(Succeed())
			Expect(vault.Balance(taker).Int64()).To(Equal(int64(1000)))
			Expect(vault.Balance(relayer).Int64()).To(Equal(int64(50)))
		})

		It("should reject any caller before the public window opens", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Withdrawal + time.Second)

			err := esc.PublicWithdraw(now, relayer, secret[:], vault)
			Expect(err).To(MatchError(escrow.ErrOutsideWindow))
		})
	})

	Context("when cancelling", func() {
		It("should refund the maker of a source escrow in full", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Cancellation + time.Second)

			Expect(esc.Cancel(now, maker, vault)).To(Succeed())
			Expect(esc.Status()).To(Equal(escrow.Cancelled))
			Expect(vault.Balance(maker).Int64()).To(Equal(int64(1050)))
		})

		It("should reject cancellation before the cancellation timelock", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Cancellation - time.Minute)

			err := esc.Cancel(now, maker, vault)
			Expect(err).To(MatchError(escrow.ErrOutsideWindow))
		})

		It("should reject a withdrawal with the correct secret after cancellation", func() {
			esc := newSource(1000, 50)
			Expect(esc.Cancel(deployedAt.Add(delays.Cancellation+time.Second), maker, vault)).To(Succeed())

			err := esc.Withdraw(deployedAt.Add(delays.Withdrawal+time.Second), taker, secret[:], vault)
			Expect(err).To(MatchError(escrow.ErrNotActive))
			Expect(vault.Balance(taker).Sign()).To(BeZero())
		})

		It("should let anyone cancel after the public grace buffer, paying them the deposit", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Cancellation + delays.PublicCancelBuffer + time.Second)

			Expect(esc.PublicCancel(now, relayer, vault)).To(Succeed())
			Expect(vault.Balance(maker).Int64()).To(Equal(int64(1000)))
			Expect(vault.Balance(relayer).Int64()).To(Equal(int64(50)))
		})
	})

	Context("when operating on a terminal escrow", func() {
		It("should reject a second withdrawal without moving funds", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Withdrawal + time.Second)

			Expect(esc.Withdraw(now, taker, secret[:], vault)).To(Succeed())
			err := esc.Withdraw(now, taker, secret[:], vault)
			Expect(err).To(MatchError(escrow.ErrNotActive))
			Expect(vault.Balance(taker).Int64()).To(Equal(int64(1050)))
		})

		It("should reject a cancel after a withdrawal", func() {
			esc := newSource(1000, 50)
			Expect(esc.Withdraw(deployedAt.Add(delays.Withdrawal+time.Second), taker, secret[:], vault)).To(Succeed())

			err := esc.Cancel(deployedAt.Add(delays.Cancellation+time.Second), maker, vault)
			Expect(err).To(MatchError(escrow.ErrNotActive))
		})
	})

	Context("when rescuing", func() {
		It("should sweep remaining balances to the admin after the rescue delay", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Rescue + time.Second)

			Expect(esc.Rescue(now, admin, vault)).To(Succeed())
			Expect(vault.Balance(admin).Int64()).To(Equal(int64(1050)))
		})

		It("should reject rescue by anyone else", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Rescue + time.Second)

			err := esc.Rescue(now, relayer, vault)
			Expect(err).To(MatchError(escrow.ErrUnauthorized))
		})

		It("should reject rescue before the rescue delay", func() {
			esc := newSource(1000, 50)
			now := deployedAt.Add(delays.Cancellation + delays.PublicCancelBuffer + time.Second)

			err := esc.Rescue(now, admin, vault)
			Expect(err).To(MatchError(escrow.ErrOutsideWindow))
		})
	})
})

var _ = Describe("Destination escrow", func() {
	var (
		vault      *escrow.Vault
		deployedAt time.Time
		secret     [32]byte
		hashlock   common.Hash
		fees       escrow.Fees
	)

	BeforeEach(func() {
		vault = escrow.NewVault()
		deployedAt = time.Now()
		s, h, err := htlc.NewSecret()
		Expect(err).To(BeNil())
		secret = s
		hashlock = h
		fees = escrow.Fees{
			ProtocolAmount:      big.NewInt(10),
			ProtocolRecipient:   protocol,
			IntegratorAmount:    big.NewInt(5),
			IntegratorRecipient: integrator,
		}
	})

	It("should split the locked amount between maker and fee recipients", func() {
		esc, err := escrow.NewDestination(randomHash(), hashlock, maker, taker, big.NewInt(1000), big.NewInt(50), deployedAt, delays, admin, fees)
		Expect(err).To(BeNil())
		now := deployedAt.Add(delays.Withdrawal + time.Second)

		Expect(esc.Withdraw(now, taker, secret[:], vault)).To(Succeed())
		Expect(vault.Balance(protocol).Int64()).To(Equal(int64(10)))
		Expect(vault.Balance(integrator).Int64()).To(Equal(int64(5)))
		Expect(vault.Balance(maker).Int64()).To(Equal(int64(985)))

		// Conservation: maker + protocol + integrator == locked amount.
		total := new(big.Int).Add(vault.Balance(maker), vault.Balance(protocol))
		total.Add(total, vault.Balance(integrator))
		Expect(total.Int64()).To(Equal(int64(1000)))
	})

	It("should refund the taker on cancellation", func() {
		esc, err := escrow.NewDestination(randomHash(), hashlock, maker, taker, big.NewInt(1000), big.NewInt(50), deployedAt, delays, admin, fees)
		Expect(err).To(BeNil())
		now := deployedAt.Add(delays.Cancellation + time.Second)

		Expect(esc.Cancel(now, taker, vault)).To(Succeed())
		Expect(vault.Balance(taker).Int64()).To(Equal(int64(1050)))
	})

	It("should reject fees exceeding the locked amount at creation", func() {
		fees.ProtocolAmount = big.NewInt(996)
		_, err := escrow.NewDestination(randomHash(), hashlock, maker, taker, big.NewInt(1000), big.NewInt(50), deployedAt, delays, admin, fees)
		Expect(err).To(MatchError(escrow.ErrFeeExceedsAmount))
	})
})
