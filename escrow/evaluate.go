package escrow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DefaultContentLimit bounds the fetched submission content embedded in the
// evaluation prompt, protecting the judge's context window. Tune via
// Engine.SetContentLimit.
const DefaultContentLimit = 4000

// Fetcher retrieves the textual content behind a submission URL. Retrieval
// is expected to be idempotent and side-effect free; the engine never
// retries a failed fetch.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Judge produces a free-text judgment for an evaluation prompt. The engine
// performs exactly one logical judgment per evaluation and assumes no retry
// contract beyond what the implementation does internally.
type Judge interface {
	Judge(ctx context.Context, prompt string) (string, error)
}

// EvaluationResult is the structured outcome of one evaluation attempt.
type EvaluationResult struct {
	Verdict    Verdict `json:"verdict"`
	Evaluation string  `json:"evaluation,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// EvaluateAndRelease runs the four-stage evaluation pipeline on a submitted
// job: fetch the deliverable, build the judging prompt, obtain a judgment
// and disburse based on the extracted verdict. The operation may be
// triggered by anyone; it is safe against double disbursement because it is
// only reachable from the submitted status and always exits to a terminal
// status, so a second call fails the state precondition.
//
// A fetch failure is not an error: an inaccessible deliverable is treated
// as non-delivery, refunding the client. A judge failure is a system fault
// and aborts the operation with the job still submitted, so the evaluation
// can be retried. A ledger failure likewise aborts without committing any
// state change.
func (e *Engine) EvaluateAndRelease(ctx context.Context, id uuid.UUID) (*EvaluationResult, error) {
	const op = "evaluate_and_release"
	unlock := e.lockJob(id)
	defer unlock()
	job, err := e.loadJob(id)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusSubmitted {
		return nil, errWrongState(op, job.Status)
	}
	if e.fetcher == nil {
		return nil, errNilFetcher
	}
	if e.judge == nil {
		return nil, errNilJudge
	}

	content, err := e.fetcher.Fetch(ctx, job.SubmissionURL)
	if err != nil {
		job.EvaluationResult = fmt.Sprintf("REJECTED: Could not access submission URL. Error: %v", err)
		if serr := e.settle(job, job.Client, StatusRefunded); serr != nil {
			return nil, serr
		}
		e.forgetLock(job.ID)
		e.emit(NewEvaluatedEvent(job, VerdictRejected))
		e.emit(NewRefundedEvent(job, RefundReasonFetchFailed))
		return &EvaluationResult{Verdict: VerdictRejected, Reason: "URL inaccessible"}, nil
	}

	prompt := BuildEvaluationPrompt(job, content, e.contentLimit)
	response, err := e.judge.Judge(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("escrow %s: judgment failed: %w", op, err)
	}

	verdict := ExtractVerdict(response)
	recipient := job.Client
	status := StatusRefunded
	if verdict == VerdictApproved {
		if job.Freelancer == nil {
			return nil, fmt.Errorf("escrow %s: submitted job missing freelancer", op)
		}
		recipient = *job.Freelancer
		status = StatusCompleted
	}
	job.EvaluationResult = response
	if err := e.settle(job, recipient, status); err != nil {
		return nil, err
	}
	e.forgetLock(job.ID)
	e.emit(NewEvaluatedEvent(job, verdict))
	if verdict == VerdictApproved {
		e.emit(NewCompletedEvent(job))
	} else {
		e.emit(NewRefundedEvent(job, RefundReasonVerdictRejected))
	}
	return &EvaluationResult{Verdict: verdict, Evaluation: response}, nil
}

// BuildEvaluationPrompt deterministically renders the judging prompt for a
// job, embedding at most limit runes of the fetched submission content. The
// prompt demands a fixed machine-parseable response schema so the verdict
// can be extracted reliably.
func BuildEvaluationPrompt(job *Job, content string, limit int) string {
	if limit <= 0 {
		limit = DefaultContentLimit
	}
	return fmt.Sprintf(`You are an impartial evaluator for a freelance job submission.

## JOB DETAILS

**Title:** %s

**Requirements:**
%s

## SUBMISSION

**URL:** %s

**Content Preview:**
%s

## YOUR TASK

Evaluate whether this submission meets the stated requirements.

Consider:
1. Does it address ALL stated requirements?
2. Is the implementation functional and reasonable?
3. Are there critical missing pieces that would make it unusable?

Be fair but strict. The freelancer was paid to deliver what was asked.

## REQUIRED RESPONSE FORMAT

You MUST respond in exactly this format:

VERDICT: [APPROVED or REJECTED]
CONFIDENCE: [HIGH, MEDIUM, or LOW]
SUMMARY: [One sentence summary of your decision]
DETAILS: [2-3 sentences explaining your reasoning]

Example:
VERDICT: APPROVED
CONFIDENCE: HIGH
SUMMARY: The submission meets all stated requirements.
DETAILS: The code includes user authentication, analytics charts, and responsive design as requested. Dark mode is implemented via a toggle in the header. Code quality is acceptable.
`, job.Title, job.Requirements, job.SubmissionURL, truncateRunes(content, limit))
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
