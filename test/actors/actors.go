package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"verdict/dispute"
	"verdict/escrow"
	"verdict/outbox"
	"verdict/receipt"
)

// Env bundles the services the actors drive. All actors go through the
// service layer so concurrent runs exercise the same code paths as the API.
type Env struct {
	Disputes   *dispute.Service
	Ledger     *escrow.Ledger
	Receipts   *receipt.Registry
	Worker     *outbox.Worker
	Principals []string
}

func (e *Env) randPrincipal() string {
	return e.Principals[rand.Intn(len(e.Principals))]
}

func (e *Env) randDisputeID(ctx context.Context) (int64, error) {
	total, err := e.Disputes.Counter(ctx)
	if err != nil || total == 0 {
		return 0, err
	}
	return 1 + rand.Int63n(total), nil
}

// expected reports whether an error is a domain rejection that contention is
// supposed to produce, as opposed to an infrastructure failure.
func expected(err error) bool {
	for _, sentinel := range []error{
		dispute.ErrNotFound,
		dispute.ErrPaused,
		dispute.ErrBlacklisted,
		dispute.ErrCooldownActive,
		dispute.ErrWrongPhase,
		dispute.ErrEvidenceLimit,
		dispute.ErrVotingNotReached,
		dispute.ErrNoSubmitters,
		dispute.ErrVotingClosed,
		dispute.ErrNotSubmitter,
		dispute.ErrAlreadyVoted,
		dispute.ErrVotingNotEnded,
		dispute.ErrAlreadyResolved,
		escrow.ErrInsufficientFunds,
		receipt.ErrNotFound,
		receipt.ErrNotTie,
		receipt.ErrNotHeldBySystem,
		receipt.ErrAlreadyMinted,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Creator opens escrow-backed disputes between random principal pairs,
// funding the creator first.
func Creator(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		creator := env.randPrincipal()
		respondent := env.randPrincipal()
		if respondent == creator {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		amount := int64(1 + rand.Intn(200))
		if err := env.Ledger.Deposit(ctx, creator, amount); err != nil {
			return fmt.Errorf("creator deposit: %w", err)
		}

		_, err := env.Disputes.Create(ctx, dispute.CreateParams{
			Creator:        creator,
			Respondent:     respondent,
			Title:          fmt.Sprintf("Stress dispute by %s", creator),
			Description:    "Concurrent stress run disagreement over a delivery.",
			RequiresEscrow: true,
			EscrowAmount:   amount,
			AttachedValue:  amount,
			Evidence: []dispute.EvidenceInput{
				{Description: "Opening evidence from the creator.", DocumentHash: fmt.Sprintf("h-%d", rand.Int63()), SupportsCreator: true},
			},
		})
		if err != nil && !expected(err) {
			return fmt.Errorf("creator: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Submitter attaches evidence to random disputes, joining the voter set.
func Submitter(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		id, err := env.randDisputeID(ctx)
		if err != nil {
			return fmt.Errorf("submitter pick: %w", err)
		}
		if id > 0 {
			_, err := env.Disputes.SubmitEvidence(ctx, dispute.SubmitEvidenceParams{
				DisputeID:       id,
				Submitter:       env.randPrincipal(),
				Description:     "Corroborating material gathered mid-run.",
				DocumentHash:    fmt.Sprintf("h-%d", rand.Int63()),
				SupportsCreator: rand.Intn(2) == 0,
			})
			if err != nil && !expected(err) {
				return fmt.Errorf("submitter: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Advancer races to move disputes into the voting phase.
func Advancer(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		id, err := env.randDisputeID(ctx)
		if err != nil {
			return fmt.Errorf("advancer pick: %w", err)
		}
		if id > 0 {
			_, err := env.Disputes.StartVoting(ctx, dispute.StartVotingParams{DisputeID: id, ActorID: env.randPrincipal()})
			if err != nil && !expected(err) {
				return fmt.Errorf("advancer: %w", err)
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Voter casts votes on random disputes.
func Voter(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		id, err := env.randDisputeID(ctx)
		if err != nil {
			return fmt.Errorf("voter pick: %w", err)
		}
		if id > 0 {
			_, err := env.Disputes.CastVote(ctx, dispute.CastVoteParams{
				DisputeID:       id,
				Voter:           env.randPrincipal(),
				SupportsCreator: rand.Intn(2) == 0,
				Reason:          "stress voter weighed the record",
			})
			if err != nil && !expected(err) {
				return fmt.Errorf("voter: %w", err)
			}
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Resolver races to settle disputes whose voting window has closed.
func Resolver(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		id, err := env.randDisputeID(ctx)
		if err != nil {
			return fmt.Errorf("resolver pick: %w", err)
		}
		if id > 0 {
			_, err := env.Disputes.Resolve(ctx, dispute.ResolveParams{DisputeID: id, ActorID: env.randPrincipal()})
			if err != nil && !expected(err) {
				return fmt.Errorf("resolver: %w", err)
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Releaser hands system-held tie receipts back to one of the parties.
func Releaser(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		total, err := env.Receipts.Counter(ctx)
		if err != nil {
			return fmt.Errorf("releaser count: %w", err)
		}
		if total > 0 {
			tokenID := 1 + rand.Int63n(total)
			tok, err := env.Receipts.Get(ctx, tokenID)
			if err == nil && tok.Tie {
				d, derr := env.Disputes.Get(ctx, tok.DisputeID)
				if derr == nil {
					to := d.Creator
					if rand.Intn(2) == 0 {
						to = d.Respondent
					}
					if _, rerr := env.Receipts.ReleaseTie(ctx, receipt.ReleaseParams{
						TokenID:   tokenID,
						To:        to,
						ActorID:   "stress-admin",
						ActorRole: "admin",
					}); rerr != nil && !expected(rerr) && !errors.Is(rerr, receipt.ErrBadRecipient) {
						return fmt.Errorf("releaser: %w", rerr)
					}
				}
			}
		}
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

// Drainer consumes the outbox with SKIP LOCKED claims, occasionally skipping
// an ack to force a retry on the next sweep.
func Drainer(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		messages, err := env.Worker.Claim(ctx, 20)
		if err != nil {
			return fmt.Errorf("drainer claim: %w", err)
		}
		for _, msg := range messages {
			if rand.Intn(10) == 0 {
				continue // simulate delivery failure, stays pending
			}
			if err := env.Worker.MarkProcessed(ctx, msg.ID); err != nil {
				return fmt.Errorf("drainer ack: %w", err)
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
}
