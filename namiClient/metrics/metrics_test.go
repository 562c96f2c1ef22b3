package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/transaction"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

func TestProbeObserver(t *testing.T) {
	m := New()
	observe := m.ProbeObserver(func() string { return "harpoon-4" })

	observe("https://rpc-a", 42*time.Millisecond, nil)
	observe("https://rpc-b", 0, errors.New("timeout"))
	observe("https://rpc-b", 0, errors.New("timeout"))

	assert.Equal(t, 42.0, testutil.ToFloat64(m.EndpointLatency.WithLabelValues("harpoon-4", "https://rpc-a")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EndpointFailures.WithLabelValues("harpoon-4", "https://rpc-b")))
}

func TestObservers(t *testing.T) {
	m := New()
	m.ConnectObserver(wallet.KindKeyring, nil)
	m.ConnectObserver(wallet.KindPairing, errors.New("rejected"))
	m.TxObserver(transaction.Deposit, transaction.StateSuccess)
	m.ObserveBlock("kaiyo-1", network.BlockStatus{Height: 1234})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WalletConnections.WithLabelValues("keyring", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WalletConnections.WithLabelValues("pairing", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TxSubmissions.WithLabelValues("deposit", "success")))
	assert.Equal(t, 1234.0, testutil.ToFloat64(m.BlockHeight.WithLabelValues("kaiyo-1")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.TxObserver(transaction.Withdraw, transaction.StateFailure)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `nami_tx_submissions_total{kind="withdraw",result="failure"} 1`)
}
