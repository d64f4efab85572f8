package test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"verdict/dispute"
	"verdict/escrow"
	"verdict/outbox"
	"verdict/receipt"
	"verdict/test/infra"
	"verdict/test/oracles"
	"verdict/timeline"
)

// manualClock is a hand-stepped clock for deterministic lifecycle runs.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type lifecycleEnv struct {
	pool     *pgxpool.Pool
	svc      *dispute.Service
	ledger   *escrow.Ledger
	receipts *receipt.Registry
	clock    *manualClock
}

func setupLifecycle(t *testing.T) *lifecycleEnv {
	t.Helper()
	ctx := context.Background()

	var (
		dsn        string
		usedShared bool
	)
	switch {
	case os.Getenv("VERDICT_TEST_PG_DSN") != "":
		dsn = os.Getenv("VERDICT_TEST_PG_DSN")
		usedShared = true
	case dockerAvailable(ctx):
		pgC, containerDSN, err := infra.StartPostgres16(ctx, "")
		if err != nil {
			t.Fatalf("start postgres: %v", err)
		}
		t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })
		dsn = containerDSN
	default:
		t.Skip("no VERDICT_TEST_PG_DSN and no docker; skipping lifecycle integration test")
	}

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = teardown(context.Background())
		pool.Close()
	})

	clock := &manualClock{t: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	ledger := escrow.NewLedger(pool)
	out := outbox.NewWriter()
	receipts := receipt.NewRegistry(pool, "system").WithOutbox(out)
	svc := dispute.NewService(pool, dispute.NewRepository(pool), ledger, receipts, timeline.NewWriter(), out).
		WithClock(clock.Now)
	receipts.WithPauseCheck(svc.Paused)

	return &lifecycleEnv{pool: pool, svc: svc, ledger: ledger, receipts: receipts, clock: clock}
}

func (e *lifecycleEnv) createFunded(t *testing.T, ctx context.Context, creator, respondent string, amount int64) dispute.Dispute {
	t.Helper()
	if err := e.ledger.Deposit(ctx, creator, amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	d, err := e.svc.Create(ctx, dispute.CreateParams{
		Creator:        creator,
		Respondent:     respondent,
		Title:          "Lifecycle shipment dispute",
		Description:    "Delivery never reached the agreed destination.",
		RequiresEscrow: true,
		EscrowAmount:   amount,
		AttachedValue:  amount,
		Evidence: []dispute.EvidenceInput{
			{Description: "Carrier manifest without a delivery scan.", DocumentHash: "m-1", SupportsCreator: true},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return d
}

func (e *lifecycleEnv) submit(t *testing.T, ctx context.Context, disputeID int64, who string, supportsCreator bool) {
	t.Helper()
	if _, err := e.svc.SubmitEvidence(ctx, dispute.SubmitEvidenceParams{
		DisputeID:       disputeID,
		Submitter:       who,
		Description:     "Supporting statement entered into the record.",
		DocumentHash:    "d-" + who,
		SupportsCreator: supportsCreator,
	}); err != nil {
		t.Fatalf("submit evidence %s: %v", who, err)
	}
}

func (e *lifecycleEnv) vote(t *testing.T, ctx context.Context, disputeID int64, who string, supportsCreator bool) {
	t.Helper()
	if _, err := e.svc.CastVote(ctx, dispute.CastVoteParams{
		DisputeID:       disputeID,
		Voter:           who,
		SupportsCreator: supportsCreator,
		Reason:          "weighed the filed evidence",
	}); err != nil {
		t.Fatalf("vote %s: %v", who, err)
	}
}

func (e *lifecycleEnv) balance(t *testing.T, ctx context.Context, who string) int64 {
	t.Helper()
	b, err := e.ledger.Balance(ctx, who)
	if err != nil {
		t.Fatalf("balance %s: %v", who, err)
	}
	return b
}

func (e *lifecycleEnv) checkOracles(t *testing.T, ctx context.Context) {
	t.Helper()
	name, row, err := oracles.Run(ctx, e.pool)
	if err != nil {
		t.Fatalf("oracles: %v", err)
	}
	if name != "" {
		t.Fatalf("oracle %s failed: %s", name, row)
	}
}

func TestLifecycle_DecisiveMajority(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()

	d := env.createFunded(t, ctx, "creator-a", "respondent-a", 1)
	if env.balance(t, ctx, "creator-a") != 0 {
		t.Fatal("stake not retained from creator")
	}
	if env.balance(t, ctx, "system") != 1 {
		t.Fatal("stake not held by system")
	}

	env.submit(t, ctx, d.ID, "respondent-a", false)
	env.submit(t, ctx, d.ID, "witness-a", true)

	env.clock.Set(d.VotingStartAt.Add(time.Minute))
	if _, err := env.svc.StartVoting(ctx, dispute.StartVotingParams{DisputeID: d.ID, ActorID: "witness-a"}); err != nil {
		t.Fatalf("start voting: %v", err)
	}

	env.vote(t, ctx, d.ID, "creator-a", true)
	env.vote(t, ctx, d.ID, "witness-a", true)
	env.vote(t, ctx, d.ID, "respondent-a", false)

	env.clock.Set(d.VotingEndAt.Add(time.Minute))
	out, err := env.svc.Resolve(ctx, dispute.ResolveParams{DisputeID: d.ID, ActorID: "witness-a"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if out.Winner == nil || *out.Winner != "creator-a" {
		t.Fatalf("winner = %v, want creator-a", out.Winner)
	}
	if got := env.balance(t, ctx, "creator-a"); got != 1 {
		t.Errorf("winner balance = %d, want 1", got)
	}
	if got := env.balance(t, ctx, "system"); got != 0 {
		t.Errorf("system balance = %d, want 0", got)
	}

	tok, err := env.receipts.ForDispute(ctx, d.ID)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if tok.Owner != "creator-a" || tok.Tie {
		t.Errorf("receipt = %+v", tok)
	}

	env.checkOracles(t, ctx)
}

func TestLifecycle_TieSplitAndRelease(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()

	d := env.createFunded(t, ctx, "creator-b", "respondent-b", 1)
	env.submit(t, ctx, d.ID, "respondent-b", false)

	env.clock.Set(d.VotingStartAt.Add(time.Minute))
	if _, err := env.svc.StartVoting(ctx, dispute.StartVotingParams{DisputeID: d.ID}); err != nil {
		t.Fatalf("start voting: %v", err)
	}
	env.vote(t, ctx, d.ID, "creator-b", true)
	env.vote(t, ctx, d.ID, "respondent-b", false)

	env.clock.Set(d.VotingEndAt.Add(time.Minute))
	out, err := env.svc.Resolve(ctx, dispute.ResolveParams{DisputeID: d.ID})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Winner == nil || *out.Winner != "system" {
		t.Fatalf("tie winner = %v, want system", out.Winner)
	}

	// A single indivisible unit goes wholly to the respondent.
	if got := env.balance(t, ctx, "creator-b"); got != 0 {
		t.Errorf("creator balance = %d, want 0", got)
	}
	if got := env.balance(t, ctx, "respondent-b"); got != 1 {
		t.Errorf("respondent balance = %d, want 1", got)
	}
	if got := env.balance(t, ctx, "system"); got != 0 {
		t.Errorf("system balance = %d, want 0", got)
	}

	tok, err := env.receipts.ForDispute(ctx, d.ID)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if !tok.Tie || tok.Owner != "system" {
		t.Fatalf("tie receipt = %+v", tok)
	}
	if owner, err := env.receipts.OwnerOf(ctx, tok.ID); err != nil || owner != "system" {
		t.Fatalf("OwnerOf = %q, %v, want system", owner, err)
	}

	// Only an admin can hand the receipt to a party.
	if _, err := env.receipts.ReleaseTie(ctx, receipt.ReleaseParams{
		TokenID: tok.ID, To: "creator-b", ActorID: "creator-b", ActorRole: "participant",
	}); !errors.Is(err, receipt.ErrForbidden) {
		t.Fatalf("non-admin release err = %v, want ErrForbidden", err)
	}

	released, err := env.receipts.ReleaseTie(ctx, receipt.ReleaseParams{
		TokenID: tok.ID, To: "creator-b", ActorID: "admin-1", ActorRole: "admin",
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Owner != "creator-b" || released.ReleasedAt == nil {
		t.Fatalf("released receipt = %+v", released)
	}
	if owner, err := env.receipts.OwnerOf(ctx, tok.ID); err != nil || owner != "creator-b" {
		t.Fatalf("OwnerOf after release = %q, %v, want creator-b", owner, err)
	}

	// A second release must fail: the token is no longer system-held.
	if _, err := env.receipts.ReleaseTie(ctx, receipt.ReleaseParams{
		TokenID: tok.ID, To: "respondent-b", ActorID: "admin-1", ActorRole: "admin",
	}); !errors.Is(err, receipt.ErrNotHeldBySystem) {
		t.Fatalf("second release err = %v, want ErrNotHeldBySystem", err)
	}

	env.checkOracles(t, ctx)
}

func TestLifecycle_CooldownAndSequentialIDs(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()

	first := env.createFunded(t, ctx, "creator-c", "respondent-c", 1)
	if first.ID <= 0 {
		t.Fatalf("dispute id = %d", first.ID)
	}

	if err := env.ledger.Deposit(ctx, "creator-c", 1); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	_, err := env.svc.Create(ctx, dispute.CreateParams{
		Creator:        "creator-c",
		Respondent:     "respondent-c",
		Title:          "Too soon",
		Description:    "A second filing inside the cooldown window.",
		RequiresEscrow: true,
		EscrowAmount:   1,
		AttachedValue:  1,
		Evidence: []dispute.EvidenceInput{
			{Description: "Placeholder evidence for the retry.", DocumentHash: "m-2"},
		},
	})
	if !errors.Is(err, dispute.ErrCooldownActive) {
		t.Fatalf("create inside cooldown err = %v, want ErrCooldownActive", err)
	}

	wait, err := env.svc.RemainingCooldown(ctx, "creator-c")
	if err != nil {
		t.Fatalf("remaining cooldown: %v", err)
	}
	if wait <= 0 || wait > dispute.CreationCooldown {
		t.Fatalf("remaining cooldown = %v", wait)
	}

	env.clock.Set(env.clock.Now().Add(dispute.CreationCooldown + time.Minute))
	second := env.createFunded(t, ctx, "creator-c", "respondent-c", 1)
	if second.ID != first.ID+1 {
		t.Errorf("ids not sequential: %d then %d", first.ID, second.ID)
	}

	env.checkOracles(t, ctx)
}

func TestLifecycle_FailedCreationBurnsNoID(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()

	before, err := env.svc.Counter(ctx)
	if err != nil {
		t.Fatalf("counter: %v", err)
	}

	// No deposit: the stake debit fails after the dispute row is written
	// and the whole creation rolls back.
	_, err = env.svc.Create(ctx, dispute.CreateParams{
		Creator:        "creator-d",
		Respondent:     "respondent-d",
		Title:          "Unfunded filing",
		Description:    "An escrow-backed filing without the funds to stake.",
		RequiresEscrow: true,
		EscrowAmount:   5,
		AttachedValue:  5,
		Evidence: []dispute.EvidenceInput{
			{Description: "Evidence attached to the unfunded filing.", DocumentHash: "m-3"},
		},
	})
	if !errors.Is(err, escrow.ErrInsufficientFunds) {
		t.Fatalf("unfunded create err = %v, want ErrInsufficientFunds", err)
	}

	after, err := env.svc.Counter(ctx)
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if after != before {
		t.Fatalf("counter moved %d -> %d on a failed creation", before, after)
	}

	funded := env.createFunded(t, ctx, "creator-d", "respondent-d", 5)
	if funded.ID != before+1 {
		t.Errorf("id after failed creation = %d, want %d", funded.ID, before+1)
	}

	env.checkOracles(t, ctx)
}
