package coordination

import (
	"context"
	"errors"
	"testing"

	"verdandi/internal/config"
	"verdandi/internal/store"
)

func testCoordinationConfig() config.Coordination {
	return config.Coordination{FingerprintThreshold: 0.6, SemanticThreshold: 0.8}
}

func reservationFor(title, description string) store.Reservation {
	c := NewCandidate(title, description)
	return store.Reservation{TopicKey: c.TopicKey, Description: c.Text(), Fingerprint: c.Fingerprint}
}

func TestFilterRejectsIdenticalTokenSets(t *testing.T) {
	f := NewFilter(testCoordinationConfig(), nil)
	existing := []store.Reservation{reservationFor("Invoice reminders", "automated unpaid invoice chasing freelancers")}

	cand := NewCandidate("Freelancers invoice chasing", "unpaid invoice reminders automated")
	verdict, err := f.Check(context.Background(), cand, existing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !verdict.Duplicate || verdict.Pass != PassFingerprint || verdict.Score != 1 {
		t.Fatalf("expected fingerprint duplicate with score 1, got %+v", verdict)
	}
}

func TestFilterAcceptsDisjointTokenSets(t *testing.T) {
	f := NewFilter(testCoordinationConfig(), nil)
	existing := []store.Reservation{reservationFor("Invoice reminders", "unpaid invoice chasing")}

	verdict, err := f.Check(context.Background(), NewCandidate("Dog walking marketplace", "neighbourhood pet sitters"), existing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if verdict.Duplicate || verdict.Score != 0 {
		t.Fatalf("expected accepted candidate, got %+v", verdict)
	}
}

func TestFilterThresholdIsStrict(t *testing.T) {
	// 3 shared of 5 total keywords: Jaccard exactly 0.6 passes.
	f := NewFilter(testCoordinationConfig(), nil)
	existing := []store.Reservation{{TopicKey: "x", Fingerprint: "alpha|beta|gamma|delta"}}
	cand := Candidate{TopicKey: "y", Fingerprint: "alpha|beta|gamma|omega"}

	verdict, err := f.Check(context.Background(), cand, existing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if verdict.Duplicate {
		t.Fatalf("score equal to threshold should pass, got %+v", verdict)
	}
}

func TestFilterRejectsSameTopicKey(t *testing.T) {
	f := NewFilter(testCoordinationConfig(), nil)
	existing := []store.Reservation{{TopicKey: "invoice-chaser"}}
	verdict, err := f.Check(context.Background(), NewCandidate("Invoice Chaser", "something else entirely"), existing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !verdict.Duplicate || verdict.Pass != PassTopicKey {
		t.Fatalf("expected topic key duplicate, got %+v", verdict)
	}
}

type fixedSimilarity struct {
	scores []float64
	err    error
}

func (f fixedSimilarity) Scores(context.Context, string, []string) ([]float64, error) {
	return f.scores, f.err
}

func TestFilterSemanticPass(t *testing.T) {
	existing := []store.Reservation{
		reservationFor("Payroll for contractors", "pay remote contractors"),
		reservationFor("Receipt scanner", "scan receipts into ledgers"),
	}
	cand := NewCandidate("Expense capture", "photograph bills for bookkeeping")

	f := NewFilter(testCoordinationConfig(), fixedSimilarity{scores: []float64{0.3, 0.91}})
	verdict, err := f.Check(context.Background(), cand, existing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !verdict.Duplicate || verdict.Pass != PassSemantic || verdict.Match.TopicKey != "receipt-scanner" {
		t.Fatalf("expected semantic duplicate of receipt-scanner, got %+v", verdict)
	}

	f = NewFilter(testCoordinationConfig(), fixedSimilarity{scores: []float64{0.3, 0.8}})
	if verdict, _ := f.Check(context.Background(), cand, existing); verdict.Duplicate {
		t.Fatalf("semantic score at threshold should pass, got %+v", verdict)
	}

	f = NewFilter(testCoordinationConfig(), fixedSimilarity{err: errors.New("model offline")})
	if _, err := f.Check(context.Background(), cand, existing); err == nil {
		t.Fatal("expected similarity error to surface")
	}
}

func TestNoSimilarityAlwaysPasses(t *testing.T) {
	scores, err := NoSimilarity{}.Scores(context.Background(), "a", []string{"a", "b"})
	if err != nil || len(scores) != 2 || scores[0] != 0 || scores[1] != 0 {
		t.Fatalf("unexpected scores %v err=%v", scores, err)
	}
}

func TestLexicalCosineRanksCloserText(t *testing.T) {
	scores, err := LexicalCosine{}.Scores(context.Background(),
		"scan receipts and export expenses",
		[]string{"receipt scanning with expense export", "dog walking marketplace"})
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}
	if scores[0] <= scores[1] || scores[1] != 0 {
		t.Fatalf("unexpected cosine scores %v", scores)
	}
}
