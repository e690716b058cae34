package recipient

import (
	"context"
	"sync"
	"testing"
	"time"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	walletAddr = "0x1234567890AbCdEf1234567890abcdef12345678"
	aliceAddr  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bobAddr    = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// MockDirectory is a mock implementation of Directory
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Lookup(ctx context.Context, query string) (*domain.DirectoryUser, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DirectoryUser), args.Error(1)
}

func (m *MockDirectory) GetByAddress(ctx context.Context, address string) (*domain.DirectoryUser, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DirectoryUser), args.Error(1)
}

func strPtr(s string) *string { return &s }

func TestValidate(t *testing.T) {
	cases := []struct {
		kind  domain.RecipientKind
		input string
		valid bool
		query string
	}{
		{domain.RecipientWallet, " " + walletAddr + " ", true, "0x1234567890abcdef1234567890abcdef12345678"},
		{domain.RecipientWallet, "0x1234", false, ""},
		{domain.RecipientHandle, "@Alice_1", true, "@alice_1"},
		{domain.RecipientHandle, "al", false, ""},
		{domain.RecipientDotPayID, "DP123456", true, "DP123456"},
		{domain.RecipientDotPayID, "@alice", true, "@alice"},
		{domain.RecipientDotPayID, "DP-12", false, ""},
		{domain.RecipientEmail, "alice@dotpay.xyz", true, "alice@dotpay.xyz"},
		{domain.RecipientEmail, "alice@dotpay", false, ""},
		{domain.RecipientPhone, "+254 (712) 345-678", true, "+254712345678"},
		{domain.RecipientPhone, "12-34-56", false, ""},
		{domain.RecipientKind("fax"), "123", false, ""},
	}

	for _, tc := range cases {
		query, err := Validate(tc.kind, tc.input)
		if tc.valid {
			require.NoError(t, err, "%s %q", tc.kind, tc.input)
			assert.Equal(t, tc.query, query)
		} else {
			assert.ErrorIs(t, err, errors.ErrInvalidInput, "%s %q", tc.kind, tc.input)
		}
	}
}

func TestShortAddressAndDisplayName(t *testing.T) {
	assert.Equal(t, "0x1234…5678", ShortAddress(walletAddr))
	assert.Equal(t, "0x12", ShortAddress("0x12"))

	assert.Equal(t, "@alice", DisplayName(&domain.DirectoryUser{Address: aliceAddr, Username: strPtr("alice"), DotPayID: strPtr("DP000001")}))
	assert.Equal(t, "DP000001", DisplayName(&domain.DirectoryUser{Address: aliceAddr, DotPayID: strPtr("DP000001")}))
	assert.Equal(t, "0xaaaa…aaaa", DisplayName(&domain.DirectoryUser{Address: aliceAddr}))
}

func TestService_Resolve(t *testing.T) {
	dir := new(MockDirectory)
	svc := NewService(dir, logger.NewNop())
	ctx := context.Background()

	dir.On("Lookup", ctx, "@alice").Return(&domain.DirectoryUser{Address: aliceAddr, Username: strPtr("alice")}, nil)
	dir.On("Lookup", ctx, "@ghost").Return(nil, errors.ErrRecipientNotFound)
	dir.On("Lookup", ctx, "@flaky").Return(nil, errors.Wrap(errors.ErrLookupFailed, "timeout"))

	got, err := svc.Resolve(ctx, domain.RecipientIdentifier{Kind: domain.RecipientHandle, RawValue: "@alice"})
	require.NoError(t, err)
	assert.Equal(t, aliceAddr, got.SettlementAddress)
	assert.Equal(t, "@alice", got.DisplayName)

	_, err = svc.Resolve(ctx, domain.RecipientIdentifier{Kind: domain.RecipientHandle, RawValue: "@ghost"})
	assert.ErrorIs(t, err, errors.ErrRecipientNotFound)

	_, err = svc.Resolve(ctx, domain.RecipientIdentifier{Kind: domain.RecipientHandle, RawValue: "@flaky"})
	assert.ErrorIs(t, err, errors.ErrLookupFailed)

	_, err = svc.Resolve(ctx, domain.RecipientIdentifier{Kind: domain.RecipientHandle, RawValue: "x"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	dir.AssertExpectations(t)
}

func TestService_ResolveWalletWithoutDirectory(t *testing.T) {
	svc := NewService(nil, logger.NewNop())

	got, err := svc.Resolve(context.Background(), domain.RecipientIdentifier{Kind: domain.RecipientWallet, RawValue: walletAddr})
	require.NoError(t, err)
	assert.Equal(t, "0x1234…5678", got.DisplayName)

	_, err = svc.Resolve(context.Background(), domain.RecipientIdentifier{Kind: domain.RecipientEmail, RawValue: "a@b.co"})
	assert.ErrorIs(t, err, errors.ErrDirectoryNotConfigured)
}

func TestCheckNotSelf(t *testing.T) {
	r := FromAddress(aliceAddr)
	assert.ErrorIs(t, CheckNotSelf(r, "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"), errors.ErrSelfSend)
	assert.NoError(t, CheckNotSelf(r, bobAddr))
	assert.NoError(t, CheckNotSelf(nil, bobAddr))
}

func TestResolver_WalletResolvesSynchronously(t *testing.T) {
	r := NewResolver(nil, bobAddr, 10*time.Millisecond, logger.NewNop())
	defer r.Close()

	r.Update(domain.RecipientWallet, walletAddr)

	snap := r.Snapshot()
	assert.Equal(t, StateResolved, snap.State)
	require.NotNil(t, snap.Recipient)
	assert.Equal(t, "0x1234…5678", snap.Recipient.DisplayName)
	assert.True(t, snap.Ready())
}

func TestResolver_WalletEnrichment(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("GetByAddress", mock.Anything, aliceAddr).
		Return(&domain.DirectoryUser{Address: aliceAddr, Username: strPtr("carol")}, nil).Once()

	r := NewResolver(dir, bobAddr, 5*time.Millisecond, logger.NewNop())
	defer r.Close()

	r.Update(domain.RecipientWallet, aliceAddr)
	assert.Equal(t, StateResolved, r.Snapshot().State)

	assert.Eventually(t, func() bool {
		s := r.Snapshot()
		return s.Recipient != nil && s.Recipient.DisplayName == "@carol"
	}, time.Second, 5*time.Millisecond)
	dir.AssertExpectations(t)
}

func TestResolver_InvalidNeverCallsDirectory(t *testing.T) {
	dir := new(MockDirectory)
	r := NewResolver(dir, bobAddr, time.Millisecond, logger.NewNop())
	defer r.Close()

	r.Update(domain.RecipientWallet, "0xnothex")
	r.Update(domain.RecipientHandle, "a!")

	time.Sleep(20 * time.Millisecond)
	snap := r.Snapshot()
	assert.Equal(t, StateInvalid, snap.State)
	assert.ErrorIs(t, snap.Err, errors.ErrInvalidInput)
	dir.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	dir.AssertNotCalled(t, "GetByAddress", mock.Anything, mock.Anything)
}

func TestResolver_DebounceCoalesces(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("Lookup", mock.Anything, "@alice").
		Return(&domain.DirectoryUser{Address: aliceAddr, Username: strPtr("alice")}, nil).Once()

	r := NewResolver(dir, bobAddr, 40*time.Millisecond, logger.NewNop())
	defer r.Close()

	for _, in := range []string{"@ali", "@alic", "@alice"} {
		r.Update(domain.RecipientHandle, in)
		assert.Equal(t, StateResolving, r.Snapshot().State)
	}

	assert.Eventually(t, func() bool { return r.Snapshot().State == StateResolved }, time.Second, 5*time.Millisecond)
	dir.AssertNumberOfCalls(t, "Lookup", 1)
	dir.AssertExpectations(t)
}

func TestResolver_StaleResponseDiscarded(t *testing.T) {
	dir := new(MockDirectory)
	started := make(chan struct{})
	release := make(chan struct{})

	dir.On("Lookup", mock.Anything, "@alice").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&domain.DirectoryUser{Address: aliceAddr, Username: strPtr("alice")}, nil).Once()
	dir.On("Lookup", mock.Anything, "@bob").
		Return(&domain.DirectoryUser{Address: bobAddr, Username: strPtr("bob")}, nil).Once()

	r := NewResolver(dir, "", time.Millisecond, logger.NewNop())
	defer r.Close()

	r.Update(domain.RecipientHandle, "@alice")
	<-started

	r.Update(domain.RecipientHandle, "@bob")
	require.Eventually(t, func() bool { return r.Snapshot().State == StateResolved }, time.Second, time.Millisecond)
	assert.Equal(t, bobAddr, r.Snapshot().Recipient.SettlementAddress)

	close(release)
	time.Sleep(30 * time.Millisecond)

	snap := r.Snapshot()
	assert.Equal(t, StateResolved, snap.State)
	assert.Equal(t, "@bob", snap.Recipient.DisplayName)
	dir.AssertExpectations(t)
}

func TestResolver_NotFoundVsLookupError(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("Lookup", mock.Anything, "ghost@dotpay.xyz").Return(nil, errors.ErrRecipientNotFound)
	dir.On("Lookup", mock.Anything, "down@dotpay.xyz").Return(nil, errors.Wrap(errors.ErrLookupFailed, "503"))

	r := NewResolver(dir, "", time.Millisecond, logger.NewNop())
	defer r.Close()

	r.Update(domain.RecipientEmail, "ghost@dotpay.xyz")
	assert.Eventually(t, func() bool { return r.Snapshot().State == StateNotFound }, time.Second, time.Millisecond)

	r.Update(domain.RecipientEmail, "down@dotpay.xyz")
	assert.Eventually(t, func() bool { return r.Snapshot().State == StateLookupError }, time.Second, time.Millisecond)
	assert.ErrorIs(t, r.Snapshot().Err, errors.ErrLookupFailed)
}

func TestResolver_NotConfigured(t *testing.T) {
	r := NewResolver(nil, "", time.Millisecond, logger.NewNop())
	defer r.Close()

	r.Update(domain.RecipientDotPayID, "DP123456")
	snap := r.Snapshot()
	assert.Equal(t, StateLookupError, snap.State)
	assert.ErrorIs(t, snap.Err, errors.ErrDirectoryNotConfigured)
}

func TestResolver_SelfSendBlocked(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("Lookup", mock.Anything, "DP000002").Return(&domain.DirectoryUser{Address: bobAddr, DotPayID: strPtr("DP000002")}, nil)
	dir.On("GetByAddress", mock.Anything, bobAddr).Return(nil, errors.ErrRecipientNotFound)

	r := NewResolver(dir, "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", time.Millisecond, logger.NewNop())
	defer r.Close()

	r.Update(domain.RecipientWallet, bobAddr)
	snap := r.Snapshot()
	assert.True(t, snap.SelfSend)
	assert.False(t, snap.Ready())

	r.Update(domain.RecipientDotPayID, "DP000002")
	require.Eventually(t, func() bool { return r.Snapshot().State == StateResolved }, time.Second, time.Millisecond)
	assert.True(t, r.Snapshot().SelfSend)
	assert.False(t, r.Snapshot().Ready())

	r.SetSender(aliceAddr)
	assert.True(t, r.Snapshot().Ready())
}

func TestResolver_ClearCancelsPendingLookup(t *testing.T) {
	dir := new(MockDirectory)
	r := NewResolver(dir, "", 30*time.Millisecond, logger.NewNop())
	defer r.Close()

	var mu sync.Mutex
	var states []State
	r.OnChange(func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})

	r.Update(domain.RecipientHandle, "@alice")
	r.Clear()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateIdle, r.Snapshot().State)
	dir.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateValidating, StateResolving, StateIdle}, states)
}
