package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blindcash/internal/ecash"
	"blindcash/internal/random"
	"blindcash/internal/transactions/deposit"
)

var (
	authOnce sync.Once
	testAuth *ecash.Authority
)

func authority(t *testing.T) *ecash.Authority {
	t.Helper()
	authOnce.Do(func() {
		a, err := ecash.NewAuthority("bank", 1024)
		if err == nil {
			testAuth = a
		}
	})
	require.NotNil(t, testAuth, "authority setup failed")
	return testAuth
}

func quietLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger("error", "", "")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLoadConfigWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "blindcash.yaml")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.FileExists(t, path)

	cfg.Payer = "bob"
	cfg.Merchants = []string{"one", "two", "three"}
	require.NoError(t, SaveConfig(cfg, path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "bob", loaded.Payer)
	assert.Len(t, loaded.Merchants, 3)
}

func TestLoadConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("payer: carol\nshare_hash: mimc\n"), 0644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "carol", cfg.Payer)
	assert.Equal(t, ecash.HashMiMC, cfg.ShareHash)
	assert.Equal(t, ecash.DefaultRISLength, cfg.RISLength)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cases := map[string]func(*Config){
		"small key":      func(c *Config) { c.KeyBits = 512 },
		"zero length":    func(c *Config) { c.RISLength = 0 },
		"unknown hash":   func(c *Config) { c.ShareHash = "md5" },
		"no payer":       func(c *Config) { c.Payer = "" },
		"zero amount":    func(c *Config) { c.CoinAmount = 0 },
		"no merchants":   func(c *Config) { c.Merchants = nil },
		"one document":   func(c *Config) { c.CoverNames = c.CoverNames[:1] },
		"too many":       func(c *Config) { c.CoverNames = make([]string, random.MaxRange+1) },
		"no concurrency": func(c *Config) { c.MaxConcurrency = 0 },
		"no refill":      func(c *Config) { c.DepositRefillSeconds = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestImmunityPolicy(t *testing.T) {
	assert.NoError(t, immunityPolicy(makeDocument("Jack Ryan")))
	assert.Error(t, immunityPolicy(makeDocument("")))
	assert.Error(t, immunityPolicy("The bearer of this signed document owes us money."))
}

func TestLoggerAuditFile(t *testing.T) {
	audit := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger("debug", "", audit)
	require.NoError(t, err)
	l.Info("routine deposit")
	l.Warn("coin deposited twice")
	l.Audit("double_spend_detected", map[string]interface{}{"payer": "alice"})
	require.NoError(t, l.Close())

	data, err := os.ReadFile(audit)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "routine deposit")
	assert.Contains(t, out, "coin deposited twice")
	assert.Contains(t, out, `"event":"double_spend_detected"`)
	assert.Contains(t, out, `"payer":"alice"`)
}

func TestMerchantRateLimiter(t *testing.T) {
	rl := NewMerchantRateLimiter(2, 1, time.Hour)
	assert.Equal(t, 2, rl.Tokens("shop"))
	assert.True(t, rl.Allow("shop"))
	assert.True(t, rl.Allow("shop"))
	assert.False(t, rl.Allow("shop"))
	assert.True(t, rl.Allow("other"), "buckets are per merchant")

	rl.Reset("shop")
	assert.True(t, rl.Allow("shop"))
}

func TestHealthChecks(t *testing.T) {
	a := authority(t)
	ledger := deposit.NewLedger(a.PublicKey())
	hc := NewHealthChecker(version)
	hc.RegisterComponent("authority", authorityCheck(a))
	hc.RegisterComponent("ledger", ledgerCheck(ledger, a.PublicKey()))
	hc.RegisterComponent("entropy", entropyCheck(random.Default))

	resp := CreateHealthResponse(hc.CheckHealth())
	assert.Equal(t, "success", resp.Status)
	require.Len(t, resp.Data.Components, 3)
	assert.Equal(t, "authority", resp.Data.Components[0].Name)

	zeros := random.New(strings.NewReader(strings.Repeat("\x00", 64)))
	hc.RegisterComponent("entropy", entropyCheck(zeros))
	resp = CreateHealthResponse(hc.CheckHealth())
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, Unhealthy, resp.Data.OverallStatus)
}

func TestRunFairSigning(t *testing.T) {
	metrics := NewMetricsCollector()
	require.NoError(t, runFairSigning(DefaultConfig(), authority(t), metrics, quietLogger(t)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.batches.WithLabelValues("signed")))

	summary, err := metrics.GetMetricsSummary()
	require.NoError(t, err)
	assert.Equal(t, 1.0, summary[MetricSigningBatches+"{state=signed}"])
	assert.Equal(t, 1.0, summary[MetricBatchDuration])
}

func TestRunDoubleSpend(t *testing.T) {
	a := authority(t)
	cfg := DefaultConfig()
	metrics := NewMetricsCollector()
	ledger := deposit.NewLedger(a.PublicKey())
	limiter := NewMerchantRateLimiter(cfg.DepositTokens, cfg.DepositRefillRate, time.Second)

	err := runDoubleSpend(context.Background(), cfg, a, ledger, limiter, metrics, quietLogger(t))
	require.NoError(t, err)

	assert.Len(t, ledger.GUIDs(), 1)
	assert.Equal(t, cfg.CoinAmount, ledger.Credited())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.coinsIssued))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.spends.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.deposits.WithLabelValues("credited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.deposits.WithLabelValues(ecash.PayerIdentified.String())))
	// the repeated report is refused as a duplicate
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.errors.WithLabelValues("deposit")))
}

func TestDepositThrottled(t *testing.T) {
	a := authority(t)
	cfg := DefaultConfig()
	metrics := NewMetricsCollector()
	ledger := deposit.NewLedger(a.PublicKey())
	limiter := NewMerchantRateLimiter(1, 1, time.Hour)

	coin, err := ecash.IssueCoin(a, "alice", 20, 8)
	require.NoError(t, err)
	limiter.Allow("shop")
	deposited(cfg, "shop", coin, &ecash.RIS{GUID: coin.GUID}, ledger, limiter, metrics, quietLogger(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.throttled))
	assert.False(t, ledger.HasCoin(coin.GUID))
}

func TestConfigValidateMessages(t *testing.T) {
	c := DefaultConfig()
	c.ShareHash = "md5"
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ecash.HashMiMC)

	c = DefaultConfig()
	c.CoverNames = nil
	assert.EqualError(t, c.Validate(), fmt.Sprintf("cover_names must hold between 2 and %d entries", random.MaxRange))
}

func TestLoggerFormatsMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blindcash.log")
	l, err := NewLogger("debug", path, "")
	require.NoError(t, err)
	l.Debug("slot %d of %d", 3, 8)
	l.Error("deposit failed: %s", "bad share")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "slot 3 of 8")
	assert.Contains(t, string(data), "deposit failed: bad share")
}

func TestRunDoubleSpendWithMiMCShares(t *testing.T) {
	a := authority(t)
	cfg := DefaultConfig()
	cfg.ShareHash = ecash.HashMiMC
	cfg.RISLength = 4
	h, err := ecash.LookupHash(cfg.ShareHash)
	require.NoError(t, err)
	ledger := deposit.NewLedger(a.PublicKey(), deposit.WithShareHash(h))
	limiter := NewMerchantRateLimiter(cfg.DepositTokens, cfg.DepositRefillRate, time.Second)

	require.NoError(t, runDoubleSpend(context.Background(), cfg, a, ledger, limiter, NewMetricsCollector(), quietLogger(t)))
	assert.Equal(t, cfg.CoinAmount, ledger.Credited())
}
