package escrow

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobescrow/events"
	"jobescrow/ledger"
)

type engineState interface {
	JobPut(*Job) error
	JobGet(id uuid.UUID) (*Job, bool, error)
	Transfer(from, to Address, amount *big.Int) error
	VaultAddress() Address
	VaultCredit(id uuid.UUID, amount *big.Int) error
	VaultDebit(id uuid.UUID, amount *big.Int) error
}

// Engine wires the escrow state machine with external state, the event
// emitter and the evaluation collaborators. Every public operation validates
// the job status and the caller before touching funds, and each job is held
// under an exclusive lock for the duration of one operation, so no caller
// ever observes a partially applied transition.
type Engine struct {
	state        engineState
	emitter      events.Emitter
	fetcher      Fetcher
	judge        Judge
	nowFn        func() int64
	contentLimit int

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewEngine creates an escrow engine with a no-op emitter and the default
// evaluation content limit. State and collaborators are wired via setters.
func NewEngine() *Engine {
	return &Engine{
		emitter:      events.NoopEmitter{},
		nowFn:        func() int64 { return time.Now().Unix() },
		contentLimit: DefaultContentLimit,
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetFetcher configures the submission content fetcher.
func (e *Engine) SetFetcher(fetcher Fetcher) { e.fetcher = fetcher }

// SetJudge configures the judgment collaborator.
func (e *Engine) SetJudge(judge Judge) { e.judge = judge }

// SetNowFunc overrides the time source. Primarily intended for tests to
// provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetContentLimit bounds how much fetched submission content is embedded in
// the evaluation prompt. Non-positive values restore the default.
func (e *Engine) SetContentLimit(limit int) {
	if limit <= 0 {
		e.contentLimit = DefaultContentLimit
		return
	}
	e.contentLimit = limit
}

func (e *Engine) emit(evt *events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// lockJob serializes operations per job. The hosting process may run many
// concurrent callers; holding this lock across a whole operation, including
// the evaluation pipeline's fetch and judgment calls, is what makes each
// transition atomic from the caller's point of view.
func (e *Engine) lockJob(id uuid.UUID) func() {
	e.mu.Lock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	e.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// forgetLock drops the lock table entry for a job that reached a terminal
// status. Terminal jobs accept no further transitions and queries never take
// the lock, so keeping the entry would only grow the table.
func (e *Engine) forgetLock(id uuid.UUID) {
	e.mu.Lock()
	delete(e.locks, id)
	e.mu.Unlock()
}

func (e *Engine) loadJob(id uuid.UUID) (*Job, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	job, ok, err := e.state.JobGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (e *Engine) storeJob(job *Job) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.JobPut(job)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// transfer moves amount between two ledger accounts. The state backend
// applies the movement atomically, so concurrent transfers against the same
// account never lose an update.
func (e *Engine) transfer(from, to Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return ledger.ErrNegativeAmount
	}
	return e.state.Transfer(from, to, amt)
}

// Create validates and persists a new job, moving the payment from the
// client into the module vault in the same operation. A job is therefore
// always fully funded from the moment it becomes visible.
func (e *Engine) Create(client Address, title, requirements string, duration time.Duration, amount *big.Int) (*Job, error) {
	const op = "create"
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if strings.TrimSpace(title) == "" {
		return nil, errInvalidInput(op, "job title required")
	}
	if strings.TrimSpace(requirements) == "" {
		return nil, errInvalidInput(op, "requirements required")
	}
	if duration <= 0 {
		return nil, errInvalidInput(op, "duration must be positive")
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, errInvalidInput(op, "payment amount must be positive")
	}
	now := e.now()
	job := &Job{
		ID:           uuid.New(),
		Client:       client,
		Title:        title,
		Requirements: requirements,
		Amount:       amt,
		Status:       StatusOpen,
		CreatedAt:    now,
		Deadline:     now + int64(duration/time.Second),
	}
	if err := e.transfer(client, e.state.VaultAddress(), amt); err != nil {
		return nil, err
	}
	if err := e.state.VaultCredit(job.ID, amt); err != nil {
		_ = e.transfer(e.state.VaultAddress(), client, amt)
		return nil, err
	}
	if err := e.storeJob(job); err != nil {
		// Unwind the funding so the client's payment is never stranded in
		// the vault without a job record.
		_ = e.state.VaultDebit(job.ID, amt)
		_ = e.transfer(e.state.VaultAddress(), client, amt)
		return nil, err
	}
	e.emit(NewCreatedEvent(job))
	return job.Clone(), nil
}

// Accept assigns the caller as the job's freelancer. The client cannot
// accept its own job.
func (e *Engine) Accept(id uuid.UUID, caller Address) error {
	const op = "accept"
	unlock := e.lockJob(id)
	defer unlock()
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != StatusOpen {
		return errWrongState(op, job.Status)
	}
	if caller == job.Client {
		return errWrongActor(op, "client cannot accept own job")
	}
	assigned := caller
	job.Freelancer = &assigned
	job.Status = StatusInProgress
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewAcceptedEvent(job))
	return nil
}

// Submit records the freelancer's deliverable URL and moves the job into
// the submitted state, making it eligible for evaluation.
func (e *Engine) Submit(id uuid.UUID, caller Address, url string) error {
	const op = "submit"
	unlock := e.lockJob(id)
	defer unlock()
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != StatusInProgress {
		return errWrongState(op, job.Status)
	}
	if job.Freelancer == nil || caller != *job.Freelancer {
		return errWrongActor(op, "only assigned freelancer can submit")
	}
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return errInvalidInput(op, "url cannot be empty")
	}
	job.SubmissionURL = trimmed
	job.Status = StatusSubmitted
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewSubmittedEvent(job))
	return nil
}

// Withdraw releases the assigned freelancer from the job before submission
// and reopens it for someone else. No penalty applies.
func (e *Engine) Withdraw(id uuid.UUID, caller Address) error {
	const op = "withdraw"
	unlock := e.lockJob(id)
	defer unlock()
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != StatusInProgress {
		return errWrongState(op, job.Status)
	}
	if job.Freelancer == nil || caller != *job.Freelancer {
		return errWrongActor(op, "only assigned freelancer can withdraw")
	}
	former := *job.Freelancer
	job.Freelancer = nil
	job.Status = StatusOpen
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewWithdrawnEvent(job, former))
	return nil
}

// Cancel refunds the client before any freelancer has accepted.
func (e *Engine) Cancel(id uuid.UUID, caller Address) error {
	const op = "cancel"
	unlock := e.lockJob(id)
	defer unlock()
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != StatusOpen {
		return errWrongState(op, job.Status)
	}
	if caller != job.Client {
		return errWrongActor(op, "only client can cancel")
	}
	return e.refundJob(job, RefundReasonCancelled)
}

// ClaimDeadlineRefund refunds the client once the deadline has passed with
// no submission, protecting clients from freelancers who accept but never
// deliver.
func (e *Engine) ClaimDeadlineRefund(id uuid.UUID, caller Address) error {
	const op = "claim_deadline_refund"
	unlock := e.lockJob(id)
	defer unlock()
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != StatusOpen && job.Status != StatusInProgress {
		return errWrongState(op, job.Status)
	}
	if caller != job.Client {
		return errWrongActor(op, "only client can claim deadline refund")
	}
	if e.now() <= job.Deadline {
		return errDeadlineNotReached(op)
	}
	return e.refundJob(job, RefundReasonDeadline)
}

// settle commits the terminal disbursement for a job. The per-job vault
// debit is the first committed step, so once a settlement has paid out, any
// retry fails the debit before a recipient could be credited a second time.
// Every later failure unwinds the funds movement, leaving the job either
// fully settled or untouched.
func (e *Engine) settle(job *Job, recipient Address, status JobStatus) error {
	amount := cloneBigInt(job.Amount)
	if err := e.state.VaultDebit(job.ID, amount); err != nil {
		return err
	}
	if err := e.transfer(e.state.VaultAddress(), recipient, amount); err != nil {
		_ = e.state.VaultCredit(job.ID, amount)
		return err
	}
	job.Status = status
	if err := e.storeJob(job); err != nil {
		_ = e.transfer(recipient, e.state.VaultAddress(), amount)
		_ = e.state.VaultCredit(job.ID, amount)
		return err
	}
	return nil
}

// refundJob disburses the full escrowed amount back to the client and moves
// the job into the terminal refunded state.
func (e *Engine) refundJob(job *Job, reason string) error {
	if err := e.settle(job, job.Client, StatusRefunded); err != nil {
		return err
	}
	e.forgetLock(job.ID)
	e.emit(NewRefundedEvent(job, reason))
	return nil
}

// Get returns a snapshot of the job. Terminal jobs remain queryable forever
// as audit records.
func (e *Engine) Get(id uuid.UUID) (*Job, error) {
	job, err := e.loadJob(id)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// Status returns the job's current lifecycle status.
func (e *Engine) Status(id uuid.UUID) (JobStatus, error) {
	job, err := e.loadJob(id)
	if err != nil {
		return 0, err
	}
	return job.Status, nil
}

// Evaluation returns the stored judgment text, empty until an evaluation
// attempt has occurred.
func (e *Engine) Evaluation(id uuid.UUID) (string, error) {
	job, err := e.loadJob(id)
	if err != nil {
		return "", err
	}
	return job.EvaluationResult, nil
}

// DeadlinePassed reports whether the submission deadline has elapsed.
func (e *Engine) DeadlinePassed(id uuid.UUID) (bool, error) {
	job, err := e.loadJob(id)
	if err != nil {
		return false, err
	}
	return e.now() > job.Deadline, nil
}

// TimeRemaining returns the seconds until the deadline, floored at zero.
func (e *Engine) TimeRemaining(id uuid.UUID) (int64, error) {
	job, err := e.loadJob(id)
	if err != nil {
		return 0, err
	}
	now := e.now()
	if now >= job.Deadline {
		return 0, nil
	}
	return job.Deadline - now, nil
}
