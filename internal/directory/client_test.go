package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dotpay/internal/domain"
	"dotpay/pkg/config"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceAddr = "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.DirectoryConfig{BaseURL: srv.URL + "/", InternalKey: "secret"}, logger.NewNop())
}

func TestLookup_Found(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/lookup", r.URL.Path)
		assert.Equal(t, "@alice", r.URL.Query().Get("q"))
		assert.Equal(t, "secret", r.Header.Get(InternalKeyHeader))
		_, _ = w.Write([]byte(`{"success":true,"data":{"address":"0xABCDEFabcdefabcdefabcdefabcdefabcdefabcd","username":"alice","dotpayId":"DP000001"}}`))
	})

	user, err := c.Lookup(context.Background(), " @alice ")
	require.NoError(t, err)
	assert.Equal(t, aliceAddr, user.Address)
	require.NotNil(t, user.Username)
	assert.Equal(t, "alice", *user.Username)
}

func TestLookup_NotFoundVsFailure(t *testing.T) {
	notFound := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := notFound.Lookup(context.Background(), "bob")
	assert.ErrorIs(t, err, errors.ErrRecipientNotFound)

	emptyData := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"data":null}`))
	})
	_, err = emptyData.Lookup(context.Background(), "bob")
	assert.ErrorIs(t, err, errors.ErrRecipientNotFound)

	broken := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err = broken.Lookup(context.Background(), "bob")
	assert.ErrorIs(t, err, errors.ErrLookupFailed)

	garbage := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err = garbage.Lookup(context.Background(), "bob")
	assert.ErrorIs(t, err, errors.ErrLookupFailed)
}

func TestLookup_NotConfigured(t *testing.T) {
	c := NewClient(config.DirectoryConfig{}, logger.NewNop())
	assert.False(t, c.Configured())

	_, err := c.Lookup(context.Background(), "alice")
	assert.ErrorIs(t, err, errors.ErrDirectoryNotConfigured)

	_, err = c.DeliverPaymentNotification(context.Background(), domain.PaymentNotification{})
	assert.ErrorIs(t, err, errors.ErrDirectoryNotConfigured)
}

func TestDeliveryConfigured_RequiresInternalKey(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(srv.Close)

	c := NewClient(config.DirectoryConfig{BaseURL: srv.URL}, logger.NewNop())
	assert.True(t, c.Configured())
	assert.False(t, c.DeliveryConfigured())

	_, err := c.DeliverPaymentNotification(context.Background(), domain.PaymentNotification{})
	assert.ErrorIs(t, err, errors.ErrDirectoryNotConfigured)
	assert.False(t, called)
}

func TestGetByAddress(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/"+aliceAddr, r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{"dotpayId":"DP000001"}}`))
	})

	user, err := c.GetByAddress(context.Background(), "0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD")
	require.NoError(t, err)
	assert.Equal(t, aliceAddr, user.Address)
	assert.Nil(t, user.Username)
}

func TestDeliverPaymentNotification(t *testing.T) {
	var got domain.PaymentNotification
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/notifications/payment", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(InternalKeyHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"message":"OK","data":{"id":"n1"}}`))
	})

	data, err := c.DeliverPaymentNotification(context.Background(), domain.PaymentNotification{
		TxHash: "0xabc", LogIndex: 3, Type: domain.NotificationTypePaymentReceived,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"n1"}`, string(data))
	assert.Equal(t, uint64(3), got.LogIndex)
	assert.Equal(t, "payment_received", got.Type)
}

func TestDeliverPaymentNotification_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"recipient unknown"}`))
	})

	_, err := c.DeliverPaymentNotification(context.Background(), domain.PaymentNotification{TxHash: "0xabc"})
	assert.ErrorIs(t, err, errors.ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "recipient unknown")
}
