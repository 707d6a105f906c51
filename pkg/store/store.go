package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/catalogfi/hermes/pkg/model"
)

// Event selects which transaction hash column an update targets.
type Event uint

const (
	UnknownEvent Event = iota
	SrcCreated
	DstCreated
	SrcClaimed
	DstClaimed
	SrcCancelled
	DstCancelled
)

// Swap is the durable record of one coordinated swap. The secret is
// persisted as soon as it is assigned so a relayer restart can never
// strand a revealed swap.
type Swap struct {
	gorm.Model

	OrderHash        string `gorm:"uniqueIndex"`
	CounterOrderHash string
	SecretHash       string
	Secret           string
	Phase            model.Phase
	SrcChain         string
	DstChain         string

	// The matched order's own fields are persisted in full so a restart
	// can rebuild it, destination escrows are created from this record.
	Maker     string
	Receiver  string
	Taker     string
	SrcToken  string
	DstToken  string
	SrcAmount string
	DstAmount string

	SrcDeployed  bool
	SrcWithdrawn bool
	SrcCancelled bool
	DstDeployed  bool
	DstWithdrawn bool
	DstCancelled bool

	SrcCreateTxHash string
	DstCreateTxHash string
	SrcClaimTxHash  string
	DstClaimTxHash  string
	SrcCancelTxHash string
	DstCancelTxHash string

	Error string
}

// Checkpoint records the last processed event height per chain, replayed
// from on reconnect so missed events are never skipped.
type Checkpoint struct {
	gorm.Model

	Chain  string `gorm:"uniqueIndex"`
	Height uint64
}

type Store interface {
	PutSwap(swap Swap) error

	Swap(orderHash string) (Swap, error)

	// UpdateSwap saves the mutable fields of the record, matched by order
	// hash.
	UpdateSwap(swap Swap) error

	UpdatePhase(orderHash string, phase model.Phase, err error) error

	Secret(orderHash string) (string, error)

	UpdateTxHash(orderHash string, event Event, hash string) error

	// ActiveSwaps returns every swap not yet in a terminal phase.
	ActiveSwaps() ([]Swap, error)

	PutCheckpoint(chain string, height uint64) error

	Checkpoint(chain string) (uint64, error)
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&Swap{}, &Checkpoint{}); err != nil {
		return nil, err
	}

	// Set max connections
	sqlDb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDb.SetMaxIdleConns(5)
	sqlDb.SetMaxOpenConns(5)
	sqlDb.SetConnMaxIdleTime(10 * time.Minute)
	return &store{db: db}, nil
}

func (s *store) PutSwap(swap Swap) error {
	return s.db.Create(&swap).Error
}

func (s *store) Swap(orderHash string) (Swap, error) {
	var swap Swap
	err := s.db.Where("order_hash = ?", orderHash).First(&swap).Error
	return swap, err
}

func (s *store) UpdateSwap(swap Swap) error {
	return s.db.Model(&Swap{}).Where("order_hash = ?", swap.OrderHash).Updates(map[string]interface{}{
		"phase":         swap.Phase,
		"secret":        swap.Secret,
		"src_deployed":  swap.SrcDeployed,
		"src_withdrawn": swap.SrcWithdrawn,
		"src_cancelled": swap.SrcCancelled,
		"dst_deployed":  swap.DstDeployed,
		"dst_withdrawn": swap.DstWithdrawn,
		"dst_cancelled": swap.DstCancelled,
	}).Error
}

func (s *store) UpdatePhase(orderHash string, phase model.Phase, err error) error {
	tx := s.db.Model(&Swap{}).Where("order_hash = ?", orderHash)
	if err != nil {
		return tx.Update("phase", phase).Update("error", err.Error()).Error
	}
	return tx.Update("phase", phase).Error
}

func (s *store) Secret(orderHash string) (string, error) {
	var swap Swap
	if err := s.db.Where("order_hash = ?", orderHash).First(&swap).Error; err != nil {
		return "", err
	}
	return swap.Secret, nil
}

func (s *store) UpdateTxHash(orderHash string, event Event, hash string) error {
	tx := s.db.Model(&Swap{}).Where("order_hash = ?", orderHash)
	switch event {
	case SrcCreated:
		return tx.Update("src_create_tx_hash", hash).Error
	case DstCreated:
		return tx.Update("dst_create_tx_hash", hash).Error
	case SrcClaimed:
		return tx.Update("src_claim_tx_hash", hash).Error
	case DstClaimed:
		return tx.Update("dst_claim_tx_hash", hash).Error
	case SrcCancelled:
		return tx.Update("src_cancel_tx_hash", hash).Error
	case DstCancelled:
		return tx.Update("dst_cancel_tx_hash", hash).Error
	default:
		return fmt.Errorf("unknown event")
	}
}

func (s *store) ActiveSwaps() ([]Swap, error) {
	var swaps []Swap
	err := s.db.Where("phase NOT IN ?", []model.Phase{model.PhaseCompleted, model.PhaseCancelled}).Find(&swaps).Error
	return swaps, err
}

func (s *store) PutCheckpoint(chain string, height uint64) error {
	var checkpoint Checkpoint
	err := s.db.Where("chain = ?", chain).First(&checkpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&Checkpoint{Chain: chain, Height: height}).Error
	}
	if err != nil {
		return err
	}
	if height <= checkpoint.Height {
		return nil
	}
	return s.db.Model(&Checkpoint{}).Where("chain = ?", chain).Update("height", height).Error
}

func (s *store) Checkpoint(chain string) (uint64, error) {
	var checkpoint Checkpoint
	err := s.db.Where("chain = ?", chain).First(&checkpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return checkpoint.Height, err
}
