package escrow

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle states of an escrowed job.
type JobStatus uint8

const (
	StatusOpen JobStatus = iota
	StatusInProgress
	StatusSubmitted
	StatusCompleted
	StatusRefunded
)

// Valid reports whether the status value is within the supported range.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusSubmitted, StatusCompleted, StatusRefunded:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRefunded
}

// String returns the canonical wire spelling of the status.
func (s JobStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusInProgress:
		return "in_progress"
	case StatusSubmitted:
		return "submitted"
	case StatusCompleted:
		return "completed"
	case StatusRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseStatus resolves the canonical spelling back into a JobStatus.
func ParseStatus(raw string) (JobStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open":
		return StatusOpen, nil
	case "in_progress":
		return StatusInProgress, nil
	case "submitted":
		return StatusSubmitted, nil
	case "completed":
		return StatusCompleted, nil
	case "refunded":
		return StatusRefunded, nil
	default:
		return 0, fmt.Errorf("escrow: unknown status %q", raw)
	}
}

// Address identifies a party holding funds on the ledger.
type Address [20]byte

// ParseAddress decodes a 20-byte hex address with optional 0x prefix.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	trimmed = strings.TrimPrefix(trimmed, "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("escrow: invalid address %q: %w", raw, err)
	}
	if len(decoded) != len(Address{}) {
		return Address{}, fmt.Errorf("escrow: invalid address length %d", len(decoded))
	}
	var addr Address
	copy(addr[:], decoded)
	return addr, nil
}

// Hex returns the 0x-prefixed hex encoding of the address.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string { return a.Hex() }

// Job captures the immutable definition and runtime status of one escrowed
// engagement. Freelancer is nil until a party accepts and reverts to nil on
// withdrawal; every other field set at creation never changes. Amount is the
// full escrowed payment and is disbursed exactly once, in full, on entering
// a terminal status.
type Job struct {
	ID               uuid.UUID
	Client           Address
	Freelancer       *Address
	Title            string
	Requirements     string
	Amount           *big.Int
	SubmissionURL    string
	Status           JobStatus
	CreatedAt        int64
	Deadline         int64
	EvaluationResult string
}

// Clone returns a deep copy of the job so callers can safely mutate the copy
// without affecting the stored instance.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	if j.Amount != nil {
		clone.Amount = new(big.Int).Set(j.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if j.Freelancer != nil {
		assigned := *j.Freelancer
		clone.Freelancer = &assigned
	}
	return &clone
}

// SanitizeJob validates the supplied job and returns a cloned instance with
// a non-nil amount. The original value is not mutated.
func SanitizeJob(j *Job) (*Job, error) {
	if j == nil {
		return nil, fmt.Errorf("escrow: nil job")
	}
	clone := j.Clone()
	if clone.ID == uuid.Nil {
		return nil, fmt.Errorf("escrow: job id required")
	}
	if strings.TrimSpace(clone.Title) == "" {
		return nil, fmt.Errorf("escrow: job title required")
	}
	if strings.TrimSpace(clone.Requirements) == "" {
		return nil, fmt.Errorf("escrow: job requirements required")
	}
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("escrow: payment amount must be positive")
	}
	if clone.Deadline < clone.CreatedAt {
		return nil, fmt.Errorf("escrow: deadline before creation time")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid job status: %d", clone.Status)
	}
	if clone.Freelancer != nil && *clone.Freelancer == clone.Client {
		return nil, fmt.Errorf("escrow: client and freelancer must differ")
	}
	return clone, nil
}
