package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"jobescrow/escrow"
	"jobescrow/ledger"
	"jobescrow/storage"
)

// vaultAddress is the module account holding every escrowed payment between
// funding and disbursement. It is not a spendable party address.
var vaultAddress = escrow.Address{0xee, 0x5c, 0x80, 0x77, 0x0e, 0x5c, 0x80, 0x77, 0x0e, 0x5c, 0x80, 0x77, 0x0e, 0x5c, 0x80, 0x77, 0x0e, 0x5c, 0x80, 0x77}

const (
	jobKeyPrefix     = "job/"
	accountKeyPrefix = "account/"
	vaultKeyPrefix   = "vault/"
)

// Manager persists jobs, party accounts and per-job vault balances over a
// key-value database, implementing the engine's state interface. Multi-key
// updates are serialized behind one lock so readers never observe a torn
// write.
type Manager struct {
	mu sync.RWMutex
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type storedJob struct {
	ID               string `json:"id"`
	Client           string `json:"client"`
	Freelancer       string `json:"freelancer,omitempty"`
	Title            string `json:"title"`
	Requirements     string `json:"requirements"`
	Amount           string `json:"amount"`
	SubmissionURL    string `json:"submissionUrl,omitempty"`
	Status           string `json:"status"`
	CreatedAt        int64  `json:"createdAt"`
	Deadline         int64  `json:"deadline"`
	EvaluationResult string `json:"evaluationResult,omitempty"`
}

type storedAccount struct {
	Balance string `json:"balance"`
}

func jobKey(id uuid.UUID) []byte         { return []byte(jobKeyPrefix + id.String()) }
func accountKey(a escrow.Address) []byte { return []byte(accountKeyPrefix + a.Hex()) }
func vaultKey(id uuid.UUID) []byte       { return []byte(vaultKeyPrefix + id.String()) }

func encodeJob(job *escrow.Job) ([]byte, error) {
	sanitized, err := escrow.SanitizeJob(job)
	if err != nil {
		return nil, err
	}
	record := storedJob{
		ID:               sanitized.ID.String(),
		Client:           sanitized.Client.Hex(),
		Title:            sanitized.Title,
		Requirements:     sanitized.Requirements,
		Amount:           sanitized.Amount.String(),
		SubmissionURL:    sanitized.SubmissionURL,
		Status:           sanitized.Status.String(),
		CreatedAt:        sanitized.CreatedAt,
		Deadline:         sanitized.Deadline,
		EvaluationResult: sanitized.EvaluationResult,
	}
	if sanitized.Freelancer != nil {
		record.Freelancer = sanitized.Freelancer.Hex()
	}
	return json.Marshal(record)
}

func decodeJob(raw []byte) (*escrow.Job, error) {
	var record storedJob
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("state: decode job: %w", err)
	}
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return nil, fmt.Errorf("state: decode job id: %w", err)
	}
	client, err := escrow.ParseAddress(record.Client)
	if err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(record.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("state: decode job amount %q", record.Amount)
	}
	status, err := escrow.ParseStatus(record.Status)
	if err != nil {
		return nil, err
	}
	job := &escrow.Job{
		ID:               id,
		Client:           client,
		Title:            record.Title,
		Requirements:     record.Requirements,
		Amount:           amount,
		SubmissionURL:    record.SubmissionURL,
		Status:           status,
		CreatedAt:        record.CreatedAt,
		Deadline:         record.Deadline,
		EvaluationResult: record.EvaluationResult,
	}
	if record.Freelancer != "" {
		freelancer, err := escrow.ParseAddress(record.Freelancer)
		if err != nil {
			return nil, err
		}
		job.Freelancer = &freelancer
	}
	return job, nil
}

// JobPut validates and persists the job.
func (m *Manager) JobPut(job *escrow.Job) error {
	encoded, err := encodeJob(job)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(jobKey(job.ID), encoded)
}

// JobGet loads the job by identifier.
func (m *Manager) JobGet(id uuid.UUID) (*escrow.Job, bool, error) {
	m.mu.RLock()
	raw, err := m.db.Get(jobKey(id))
	m.mu.RUnlock()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	job, err := decodeJob(raw)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// GetAccount loads the account for a party, returning a zero-balance
// account when none has been persisted yet.
func (m *Manager) GetAccount(addr escrow.Address) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountLocked(addr)
}

func (m *Manager) getAccountLocked(addr escrow.Address) (*ledger.Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return ledger.Ensure(nil), nil
	}
	if err != nil {
		return nil, err
	}
	var record storedAccount
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	balance, ok := new(big.Int).SetString(record.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("state: decode account balance %q", record.Balance)
	}
	return &ledger.Account{Balance: balance}, nil
}

// PutAccount persists the account for a party.
func (m *Manager) PutAccount(addr escrow.Address, acc *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putAccountLocked(addr, acc)
}

func (m *Manager) putAccountLocked(addr escrow.Address, acc *ledger.Account) error {
	acc = ledger.Ensure(acc)
	if acc.Balance.Sign() < 0 {
		return fmt.Errorf("state: negative account balance for %s", addr.Hex())
	}
	encoded, err := json.Marshal(storedAccount{Balance: acc.Balance.String()})
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// Transfer atomically moves amount from one account to the other. The write
// lock is held across the read-modify-write of both accounts, so concurrent
// transfers touching the same account never lose an update.
func (m *Manager) Transfer(from, to escrow.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ledger.ErrNegativeAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fromAcc, err := m.getAccountLocked(from)
	if err != nil {
		return err
	}
	toAcc, err := m.getAccountLocked(to)
	if err != nil {
		return err
	}
	if err := fromAcc.Debit(amount); err != nil {
		return err
	}
	if err := toAcc.Credit(amount); err != nil {
		return err
	}
	if err := m.putAccountLocked(from, fromAcc); err != nil {
		return err
	}
	return m.putAccountLocked(to, toAcc)
}

// VaultAddress returns the module account that custodies escrowed funds.
func (m *Manager) VaultAddress() escrow.Address { return vaultAddress }

// VaultCredit records that the vault now holds amount on behalf of the job.
func (m *Manager) VaultCredit(id uuid.UUID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ledger.ErrNegativeAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.vaultBalanceLocked(id)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	return m.db.Put(vaultKey(id), []byte(balance.String()))
}

// VaultDebit records the disbursement of amount held for the job. Debiting
// more than the tracked balance indicates a double disbursement attempt and
// fails.
func (m *Manager) VaultDebit(id uuid.UUID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ledger.ErrNegativeAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.vaultBalanceLocked(id)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("state: vault balance underflow for job %s", id)
	}
	balance.Sub(balance, amount)
	return m.db.Put(vaultKey(id), []byte(balance.String()))
}

// VaultBalance reports the amount currently held for the job.
func (m *Manager) VaultBalance(id uuid.UUID) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vaultBalanceLocked(id)
}

func (m *Manager) vaultBalanceLocked(id uuid.UUID) (*big.Int, error) {
	raw, err := m.db.Get(vaultKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state: decode vault balance %q", raw)
	}
	return balance, nil
}
