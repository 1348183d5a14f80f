// Package ecash implements anonymous coins with double-spending detection.
//
// Overview:
//   - A payer builds a Coin carrying L one-time-pad splits of its marked identity
//   - Only the hashes of the left and right shares enter the coin's canonical string
//   - The issuing Authority blind-signs that string, so it never links coin to payer
//   - Spending discloses one share per slot, chosen by the merchant's challenge bits
//   - Two spends of one coin almost surely disagree somewhere, and XOR at that slot
//     reconstructs the marked identity (DetermineCheater)
//
// Security Model:
//   - Share commitments use a configurable hash (sha256, blake2b or BW6-761 MiMC)
//   - Blind signatures are plain RSA (see internal/blindsig)
//   - All randomness comes from internal/random
//   - A single spend discloses one half of every pad and so reveals nothing
//
// Usage:
//   - IssueCoin (or NewCoin + Blind + Authority.SignBlinded + Unblind) on the payer side
//   - internal/transactions/spend for merchants, internal/transactions/deposit for the bank
//   - internal/transactions/fairsign for cut-and-choose signing of arbitrary documents
//
// References:
//   - Chaum, Fiat, Naor: Untraceable Electronic Cash (CRYPTO '88)
package ecash
