package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skalice/ledger-engine/internal/apperrors"
	"github.com/skalice/ledger-engine/internal/core/domain"
	portsrepo "github.com/skalice/ledger-engine/internal/core/ports/repositories"
	"github.com/skalice/ledger-engine/internal/core/services"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockTransactionPublisher is a mock type for the TransactionPublisher interface
type MockTransactionPublisher struct {
	mock.Mock
}

func (m *MockTransactionPublisher) Publish(ctx context.Context, queued domain.QueuedTransaction) error {
	args := m.Called(ctx, queued)
	return args.Error(0)
}

// MockTransactionConsumer is a mock type for the TransactionConsumer interface
type MockTransactionConsumer struct {
	mock.Mock
}

func (m *MockTransactionConsumer) Fetch(ctx context.Context) (*portsrepo.QueuedMessage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*portsrepo.QueuedMessage), args.Error(1)
}

func (m *MockTransactionConsumer) Ack(ctx context.Context, msg *portsrepo.QueuedMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockTransactionConsumer) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockQueuedApplier is a mock type for the QueuedApplier interface
type MockQueuedApplier struct {
	mock.Mock
}

func (m *MockQueuedApplier) ApplyQueued(ctx context.Context, queued domain.QueuedTransaction) (*domain.AccountSummary, error) {
	args := m.Called(ctx, queued)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AccountSummary), args.Error(1)
}

// --- Enqueue side ---

type RelayServiceTestSuite struct {
	suite.Suite
	mockPublisher *MockTransactionPublisher
	mockRepo      *MockLedgerRepository
	service       *services.RelayService
}

func (suite *RelayServiceTestSuite) SetupTest() {
	suite.mockPublisher = new(MockTransactionPublisher)
	suite.mockRepo = new(MockLedgerRepository)
	suite.service = services.NewRelayService(suite.mockPublisher, suite.mockRepo)
}

func (suite *RelayServiceTestSuite) TestEnqueueTransaction_Success() {
	ctx := context.Background()
	accountID := uuid.NewString()

	suite.mockRepo.On("FindAccountByID", ctx, accountID).
		Return(testAccount(accountID, "40", "0", 6), nil).Once()
	suite.mockPublisher.On("Publish", ctx, mock.MatchedBy(func(q domain.QueuedTransaction) bool {
		return q.AccountID == accountID &&
			q.TransactionID != "" &&
			q.Kind == domain.Debit &&
			q.Amount.Equal(dec("30"))
	})).Return(nil).Once()

	summary, err := suite.service.EnqueueTransaction(ctx, accountID, dec("30"), domain.Debit, "async")

	suite.Require().NoError(err)
	// Provisional: the mutation has not been applied yet.
	suite.True(summary.Balance.Equal(dec("40")))
	suite.Equal(int64(6), summary.Version)
	suite.mockPublisher.AssertExpectations(suite.T())
}

func (suite *RelayServiceTestSuite) TestEnqueueTransaction_AccountNotFound() {
	ctx := context.Background()
	accountID := uuid.NewString()

	suite.mockRepo.On("FindAccountByID", ctx, accountID).
		Return(nil, apperrors.ErrAccountNotFound).Once()

	_, err := suite.service.EnqueueTransaction(ctx, accountID, dec("30"), domain.Debit, "async")

	suite.Require().ErrorIs(err, apperrors.ErrAccountNotFound)
	// Messages for unknown accounts never enter the queue.
	suite.mockPublisher.AssertNotCalled(suite.T(), "Publish", mock.Anything, mock.Anything)
}

func (suite *RelayServiceTestSuite) TestEnqueueTransaction_PublishFailure() {
	ctx := context.Background()
	accountID := uuid.NewString()

	suite.mockRepo.On("FindAccountByID", ctx, accountID).
		Return(testAccount(accountID, "40", "0", 6), nil).Once()
	suite.mockPublisher.On("Publish", ctx, mock.Anything).
		Return(fmt.Errorf("%w: broker unreachable", apperrors.ErrInfrastructure)).Once()

	_, err := suite.service.EnqueueTransaction(ctx, accountID, dec("30"), domain.Debit, "async")

	suite.Require().ErrorIs(err, apperrors.ErrInfrastructure)
}

func (suite *RelayServiceTestSuite) TestEnqueueTransaction_Validation() {
	ctx := context.Background()

	_, err := suite.service.EnqueueTransaction(ctx, uuid.NewString(), dec("0"), domain.Debit, "zero")

	suite.Require().ErrorIs(err, apperrors.ErrValidation)
	suite.mockRepo.AssertNotCalled(suite.T(), "FindAccountByID", mock.Anything, mock.Anything)
}

func TestRelayServiceTestSuite(t *testing.T) {
	suite.Run(t, new(RelayServiceTestSuite))
}

// --- Consumer state machine ---

type RelayConsumerTestSuite struct {
	suite.Suite
	mockConsumer *MockTransactionConsumer
	mockApplier  *MockQueuedApplier
	consumer     *services.RelayConsumer
	msg          *portsrepo.QueuedMessage
}

func (suite *RelayConsumerTestSuite) SetupTest() {
	suite.mockConsumer = new(MockTransactionConsumer)
	suite.mockApplier = new(MockQueuedApplier)
	suite.consumer = services.NewRelayConsumer(
		suite.mockConsumer,
		suite.mockApplier,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		3,
		0, // no backoff in tests
	)
	suite.msg = &portsrepo.QueuedMessage{
		Queued: domain.QueuedTransaction{
			TransactionID: uuid.NewString(),
			AccountID:     uuid.NewString(),
			Amount:        dec("30"),
			Kind:          domain.Debit,
			Description:   "queued",
		},
	}
}

func (suite *RelayConsumerTestSuite) TestProcessMessage_CommittedAndAcked() {
	ctx := context.Background()

	suite.mockApplier.On("ApplyQueued", mock.Anything, suite.msg.Queued).
		Return(&domain.AccountSummary{}, nil).Once()
	suite.mockConsumer.On("Ack", mock.Anything, suite.msg).Return(nil).Once()

	suite.True(suite.consumer.ProcessMessage(ctx, suite.msg))
	suite.mockConsumer.AssertExpectations(suite.T())
}

func (suite *RelayConsumerTestSuite) TestProcessMessage_DuplicateAckedWithoutReapply() {
	ctx := context.Background()

	// A crash between commit and acknowledgment redelivers the message; the
	// reused transaction ID makes the second application a duplicate.
	suite.mockApplier.On("ApplyQueued", mock.Anything, suite.msg.Queued).
		Return(nil, apperrors.ErrDuplicate).Once()
	suite.mockConsumer.On("Ack", mock.Anything, suite.msg).Return(nil).Once()

	suite.True(suite.consumer.ProcessMessage(ctx, suite.msg))
	suite.mockApplier.AssertNumberOfCalls(suite.T(), "ApplyQueued", 1)
}

func (suite *RelayConsumerTestSuite) TestProcessMessage_BusinessRejectionAcked() {
	ctx := context.Background()

	for _, terminal := range []error{apperrors.ErrInsufficientLimit, apperrors.ErrAccountNotFound} {
		suite.SetupTest()
		suite.mockApplier.On("ApplyQueued", mock.Anything, suite.msg.Queued).
			Return(nil, terminal).Once()
		suite.mockConsumer.On("Ack", mock.Anything, suite.msg).Return(nil).Once()

		// Terminal rejections are removed from the queue without retry.
		suite.True(suite.consumer.ProcessMessage(ctx, suite.msg))
		suite.mockApplier.AssertNumberOfCalls(suite.T(), "ApplyQueued", 1)
	}
}

func (suite *RelayConsumerTestSuite) TestProcessMessage_ConflictRetriesThenCommits() {
	ctx := context.Background()

	suite.mockApplier.On("ApplyQueued", mock.Anything, suite.msg.Queued).
		Return(nil, apperrors.ErrConcurrentModification).Twice()
	suite.mockApplier.On("ApplyQueued", mock.Anything, suite.msg.Queued).
		Return(&domain.AccountSummary{}, nil).Once()
	suite.mockConsumer.On("Ack", mock.Anything, suite.msg).Return(nil).Once()

	suite.True(suite.consumer.ProcessMessage(ctx, suite.msg))
	suite.mockApplier.AssertNumberOfCalls(suite.T(), "ApplyQueued", 3)
}

func (suite *RelayConsumerTestSuite) TestProcessMessage_ConflictExhaustedLeftUnacked() {
	ctx := context.Background()

	suite.mockApplier.On("ApplyQueued", mock.Anything, suite.msg.Queued).
		Return(nil, apperrors.ErrConcurrentModification).Times(3)

	// Left unacknowledged: the consumer loop reprocesses it in place.
	suite.False(suite.consumer.ProcessMessage(ctx, suite.msg))
	suite.mockConsumer.AssertNotCalled(suite.T(), "Ack", mock.Anything, mock.Anything)
}

func (suite *RelayConsumerTestSuite) TestProcessMessage_InfrastructureFailureLeftUnacked() {
	ctx := context.Background()

	suite.mockApplier.On("ApplyQueued", mock.Anything, suite.msg.Queued).
		Return(nil, fmt.Errorf("%w: store unavailable", apperrors.ErrInfrastructure)).Once()

	suite.False(suite.consumer.ProcessMessage(ctx, suite.msg))
	suite.mockConsumer.AssertNotCalled(suite.T(), "Ack", mock.Anything, mock.Anything)
}

func (suite *RelayConsumerTestSuite) TestProcessMessage_AckFailureReported() {
	ctx := context.Background()

	suite.mockApplier.On("ApplyQueued", mock.Anything, suite.msg.Queued).
		Return(&domain.AccountSummary{}, nil).Once()
	suite.mockConsumer.On("Ack", mock.Anything, suite.msg).
		Return(fmt.Errorf("%w: commit offset failed", apperrors.ErrInfrastructure)).Once()

	suite.False(suite.consumer.ProcessMessage(ctx, suite.msg))
}

func TestRelayConsumerTestSuite(t *testing.T) {
	suite.Run(t, new(RelayConsumerTestSuite))
}

// scriptedConsumer serves a fixed message sequence in order and cancels the
// run context once the sequence is drained.
type scriptedConsumer struct {
	mu     sync.Mutex
	queue  []*portsrepo.QueuedMessage
	acked  []string
	cancel context.CancelFunc
}

func (s *scriptedConsumer) Fetch(ctx context.Context) (*portsrepo.QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		s.cancel()
		return nil, ctx.Err()
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, nil
}

func (s *scriptedConsumer) Ack(_ context.Context, msg *portsrepo.QueuedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, msg.Queued.TransactionID)
	return nil
}

func (s *scriptedConsumer) Close() error { return nil }

func (s *scriptedConsumer) ackedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acked...)
}

// scriptedApplier fails a transaction a configured number of times before
// letting it commit, recording the order of application attempts.
type scriptedApplier struct {
	mu       sync.Mutex
	failures map[string]int
	applied  []string
}

func (a *scriptedApplier) ApplyQueued(_ context.Context, queued domain.QueuedTransaction) (*domain.AccountSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, queued.TransactionID)
	if a.failures[queued.TransactionID] > 0 {
		a.failures[queued.TransactionID]--
		return nil, fmt.Errorf("%w: store unavailable", apperrors.ErrInfrastructure)
	}
	return &domain.AccountSummary{}, nil
}

func (a *scriptedApplier) appliedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.applied...)
}

// A message that fails with an infrastructure error must hold its partition:
// acknowledging a later message would commit its offset and drop the failed
// one permanently. The loop retries the failed message in place and only
// then moves on.
func TestRun_DoesNotAdvancePastUnackedMessage(t *testing.T) {
	msgA := &portsrepo.QueuedMessage{Queued: domain.QueuedTransaction{
		TransactionID: "txn-a",
		AccountID:     uuid.NewString(),
		Amount:        dec("10"),
		Kind:          domain.Debit,
		Description:   "first",
	}}
	msgB := &portsrepo.QueuedMessage{Queued: domain.QueuedTransaction{
		TransactionID: "txn-b",
		AccountID:     uuid.NewString(),
		Amount:        dec("10"),
		Kind:          domain.Debit,
		Description:   "second",
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := &scriptedConsumer{queue: []*portsrepo.QueuedMessage{msgA, msgB}, cancel: cancel}
	applier := &scriptedApplier{failures: map[string]int{"txn-a": 2}}

	relay := services.NewRelayConsumer(consumer, applier, slog.New(slog.NewTextHandler(io.Discard, nil)), 3, 0)

	err := relay.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected run to end on context cancellation, got %v", err)
	}

	wantApplied := []string{"txn-a", "txn-a", "txn-a", "txn-b"}
	if got := applier.appliedIDs(); len(got) != len(wantApplied) {
		t.Fatalf("expected application order %v, got %v", wantApplied, got)
	} else {
		for i := range wantApplied {
			if got[i] != wantApplied[i] {
				t.Fatalf("expected application order %v, got %v", wantApplied, got)
			}
		}
	}

	wantAcked := []string{"txn-a", "txn-b"}
	got := consumer.ackedIDs()
	if len(got) != len(wantAcked) || got[0] != wantAcked[0] || got[1] != wantAcked[1] {
		t.Fatalf("expected acknowledgment order %v, got %v", wantAcked, got)
	}
}

// Redelivery after a crash between commit and acknowledgment: the second
// application of the same message is rejected and the debit lands once.
func TestRelayRedeliveryAppliesAtMostOnce(t *testing.T) {
	store := newFakeLedgerStore()
	accountID := uuid.NewString()
	store.accounts[accountID] = testAccount(accountID, "40", "0", 0)

	service := services.NewLedgerService(store, noopCache{}, time.Minute)

	queued := domain.QueuedTransaction{
		TransactionID: uuid.NewString(),
		AccountID:     accountID,
		Amount:        dec("30"),
		Kind:          domain.Debit,
		Description:   "relay",
	}

	summary, err := service.ApplyQueued(context.Background(), queued)
	if err != nil {
		t.Fatalf("first application failed: %v", err)
	}
	if !summary.Balance.Equal(dec("10")) {
		t.Fatalf("expected balance 10 after first application, got %s", summary.Balance)
	}

	// Redelivery of the identical message.
	_, err = service.ApplyQueued(context.Background(), queued)
	if !errors.Is(err, apperrors.ErrDuplicate) {
		t.Fatalf("expected duplicate rejection on replay, got %v", err)
	}

	final, err := store.FindAccountByID(context.Background(), accountID)
	if err != nil {
		t.Fatal(err)
	}
	if !final.Balance.Equal(dec("10")) {
		t.Fatalf("expected balance 10 (not -20) after replay, got %s", final.Balance)
	}
	if got := store.recordCount(accountID); got != 1 {
		t.Fatalf("expected exactly one committed record, got %d", got)
	}
}
