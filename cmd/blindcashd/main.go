// main.go - Blind-signature e-cash walkthrough.
//
// Two scenarios run against a single authority:
//   - fair signing: a requester blinds one document per cover name, the
//     authority opens all but one of them and signs the last blindly
//   - double spending: a coin for the configured payer is accepted by every
//     merchant, all transcripts are deposited, and the ledger names the payer
//     who spent it twice; then the first merchant reports the same transcript
//     again
//
// Usage:
//   go run ./cmd/blindcashd -config blindcash.yaml
//
// A default config file is written on first run.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"blindcash/internal/ecash"
	"blindcash/internal/random"
	"blindcash/internal/transactions/deposit"
	"blindcash/internal/transactions/fairsign"
	"blindcash/internal/transactions/spend"
)

const version = "1.0.0"

const (
	documentPrefix = "The bearer of this signed document, "
	documentSuffix = ", has full diplomatic immunity."
)

var (
	okLine   = color.New(color.FgGreen).PrintfFunc()
	warnLine = color.New(color.FgYellow).PrintfFunc()
	badLine  = color.New(color.FgRed, color.Bold).PrintfFunc()
	title    = color.New(color.FgCyan, color.Bold).PrintlnFunc()
)

func makeDocument(coverName string) string {
	return documentPrefix + coverName + documentSuffix
}

// immunityPolicy accepts only documents built by makeDocument.
func immunityPolicy(doc string) error {
	if !strings.HasPrefix(doc, documentPrefix) || !strings.HasSuffix(doc, documentSuffix) {
		return errors.New("not an immunity document")
	}
	if len(doc) == len(documentPrefix)+len(documentSuffix) {
		return errors.New("missing cover name")
	}
	return nil
}

// runFairSigning has the authority sign one of the cover-name documents
// without seeing which.
func runFairSigning(cfg *Config, authority *ecash.Authority, metrics *MetricsCollector, logger *Logger) error {
	title("=== Fair blind signing ===")

	docs := make([]string, len(cfg.CoverNames))
	for i, name := range cfg.CoverNames {
		docs[i] = makeDocument(name)
	}

	signer := fairsign.NewSigner(authority,
		fairsign.WithDocumentPolicy(immunityPolicy),
		fairsign.WithObserver(metrics),
		fairsign.WithLogger(logger.Zerolog()),
	)
	requester, err := fairsign.NewRequester(signer.PublicKey(), docs)
	if err != nil {
		return err
	}

	batch, err := signer.Submit(requester.Blinded())
	if err != nil {
		return err
	}
	selected := batch.Selected()
	factors, revealed := requester.Disclose(selected)

	blindSig, err := batch.VerifyAndSign(factors, revealed)
	if err != nil {
		metrics.RecordError("cut_and_choose")
		logger.Audit("batch_aborted", map[string]interface{}{
			"authority": authority.Name,
			"batch":     batch.Size(),
			"error":     err.Error(),
		})
		return err
	}
	sig, err := requester.Finish(selected, blindSig)
	if err != nil {
		return err
	}

	okLine("Signed document %d of %d: %q\n", selected+1, batch.Size(), requester.Document(selected))
	hexSig := sig.Text(16)
	if len(hexSig) > 16 {
		hexSig = hexSig[:16]
	}
	logger.Info("signature %s...", hexSig)
	logger.Audit("batch_signed", map[string]interface{}{
		"authority": authority.Name,
		"batch":     batch.Size(),
		"state":     batch.State().String(),
	})
	return nil
}

// runDoubleSpend issues a coin, spends it at every merchant, and deposits the
// transcripts.
func runDoubleSpend(ctx context.Context, cfg *Config, authority *ecash.Authority, ledger *deposit.Ledger,
	limiter *MerchantRateLimiter, metrics *MetricsCollector, logger *Logger) error {
	title("=== Coin spending ===")

	coin, err := ecash.IssueCoin(authority, cfg.Payer, cfg.CoinAmount, cfg.RISLength,
		ecash.WithShareHash(cfg.ShareHash))
	if err != nil {
		return errors.Wrap(err, "issue coin")
	}
	metrics.RecordCoinIssued()
	logger.Audit("coin_issued", map[string]interface{}{
		"guid":   coin.GUID,
		"amount": coin.Amount,
		"hash":   cfg.ShareHash,
	})
	logger.Info("issued coin %s worth %d (L=%d, %s)", coin.GUID, coin.Amount, coin.RISLength(), cfg.ShareHash)

	merchants := make([]*spend.Merchant, 0, len(cfg.Merchants))
	for _, name := range cfg.Merchants {
		m, err := spend.NewMerchant(name, authority.PublicKey(),
			spend.WithShareHash(cfg.ShareHash),
			spend.WithLogger(logger.Zerolog()))
		if err != nil {
			return err
		}
		merchants = append(merchants, m)
	}

	results, err := spend.AcceptConcurrently(ctx, coin, merchants, cfg.MaxConcurrency)
	if err != nil {
		return err
	}

	title("Double-spend detection:")
	var first *spend.Result
	for i := range results {
		r := &results[i]
		metrics.RecordSpend(r.Err)
		if r.Err != nil {
			badLine("%s rejected the coin: %v\n", r.Merchant.Name, r.Err)
			continue
		}
		logger.Audit("coin_accepted", map[string]interface{}{
			"guid":     coin.GUID,
			"merchant": r.Merchant.Name,
		})
		if first == nil {
			first = r
		}
		logger.Debug("%s transcript: %s", r.Merchant.Name, strings.Join(r.RIS.Hex(), " "))
		deposited(cfg, r.Merchant.Name, coin, r.RIS, ledger, limiter, metrics, logger)
	}
	if first == nil {
		return errors.New("no merchant accepted the coin")
	}

	title("Same merchant reports again:")
	fmt.Println(ecash.DetermineCheater(coin.GUID, first.RIS, first.RIS))
	deposited(cfg, first.Merchant.Name, coin, first.RIS, ledger, limiter, metrics, logger)

	okLine("Ledger holds %d coin(s), %d credited\n", len(ledger.GUIDs()), ledger.Credited())
	return nil
}

func deposited(cfg *Config, merchant string, coin *ecash.Coin, ris *ecash.RIS, ledger *deposit.Ledger,
	limiter *MerchantRateLimiter, metrics *MetricsCollector, logger *Logger) {
	if !limiter.Allow(merchant) {
		metrics.RecordThrottled()
		warnLine("%s is depositing too fast\n", merchant)
		return
	}
	receipt, err := ledger.Deposit(merchant, coin, ris)
	if err != nil {
		if errors.Is(err, deposit.ErrDuplicateDeposit) {
			warnLine("%s: %v\n", merchant, err)
		} else {
			badLine("%s: deposit failed: %v\n", merchant, err)
		}
		metrics.RecordError("deposit")
		return
	}
	metrics.RecordDeposit(receipt.Verdict)
	if receipt.Verdict == nil {
		okLine("%s deposited coin %s for %d\n", merchant, receipt.GUID, receipt.Amount)
		return
	}

	details := map[string]interface{}{
		"guid":     receipt.GUID,
		"merchant": merchant,
		"previous": receipt.Previous,
		"slot":     receipt.Verdict.Slot,
	}
	switch receipt.Verdict.Kind {
	case ecash.PayerIdentified:
		badLine("%s\n", receipt.Verdict)
		details["payer"] = receipt.Verdict.Payer
		details["expected"] = cfg.Payer
		logger.Audit("double_spend_detected", details)
	case ecash.MerchantCheated:
		badLine("%s\n", receipt.Verdict)
		logger.Audit("merchant_cheated", details)
	default:
		warnLine("%s\n", receipt.Verdict)
	}
}

func main() {
	configPath := flag.String("config", "blindcash.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fail("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fail("config: %v", err)
	}

	logger, err := NewLogger(cfg.LogLevel, cfg.LogFile, cfg.AuditLogPath)
	if err != nil {
		fail("logger: %v", err)
	}
	defer logger.Close()

	metrics := NewMetricsCollector()
	health := NewHealthChecker(version)

	logger.Info("generating %d-bit key for %s", cfg.KeyBits, cfg.BankName)
	authority, err := ecash.NewAuthority(cfg.BankName, cfg.KeyBits, ecash.WithAuthorityLogger(logger.Zerolog()))
	if err != nil {
		logger.Fatal("authority: %v", err)
	}
	shareHash, err := ecash.LookupHash(cfg.ShareHash)
	if err != nil {
		logger.Fatal("share hash: %v", err)
	}
	ledger := deposit.NewLedger(authority.PublicKey(),
		deposit.WithShareHash(shareHash),
		deposit.WithLogger(logger.Zerolog()))
	limiter := NewMerchantRateLimiter(cfg.DepositTokens, cfg.DepositRefillRate,
		time.Duration(cfg.DepositRefillSeconds)*time.Second)

	health.RegisterComponent("authority", authorityCheck(authority))
	health.RegisterComponent("ledger", ledgerCheck(ledger, authority.PublicKey()))
	health.RegisterComponent("entropy", entropyCheck(random.Default))

	if err := runFairSigning(cfg, authority, metrics, logger); err != nil {
		metrics.RecordError("fair_signing")
		logger.Error("fair signing failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := runDoubleSpend(ctx, cfg, authority, ledger, limiter, metrics, logger); err != nil {
		metrics.RecordError("coin_scenario")
		logger.Error("coin scenario failed: %v", err)
	}

	resp := CreateHealthResponse(health.CheckHealth())
	logger.Info("health: %s (%s)", resp.Status, resp.Message)
	for _, c := range resp.Data.Components {
		logger.Debug("  %s: %s %s", c.Name, c.Status, c.Message)
	}

	summary, err := metrics.GetMetricsSummary()
	if err != nil {
		logger.Warn("metrics: %v", err)
		return
	}
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		logger.Info("%s = %g", name, summary[name])
	}
}

func fail(format string, args ...interface{}) {
	badLine(format+"\n", args...)
	os.Exit(1)
}
