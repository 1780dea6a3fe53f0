package mempool

import (
	"context"
	"encoding/hex"
	"log"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/rawblock/qsweep-engine/internal/api"
	"github.com/rawblock/qsweep-engine/internal/bitcoin"
	"github.com/rawblock/qsweep-engine/internal/detect"
	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Poller tails the node mempool and feeds every new legacy-spending
// transaction into the detection engine. Scored patterns are streamed
// to dashboard subscribers over the websocket hub.
type Poller struct {
	btcClient *bitcoin.Client
	monitor   *detect.Monitor
	wsHub     *api.Hub
	seenTXs   map[string]bool
}

func NewPoller(btcClient *bitcoin.Client, monitor *detect.Monitor, wsHub *api.Hub) *Poller {
	return &Poller{
		btcClient: btcClient,
		monitor:   monitor,
		wsHub:     wsHub,
		seenTXs:   make(map[string]bool),
	}
}

func (p *Poller) Run(ctx context.Context) {
	log.Println("Starting Mempool Observation Poller...")

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	// Keep map clean by resetting seen every hour just to prevent infinite memory growth
	cleanupTicker := time.NewTicker(1 * time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Stopping Mempool Poller...")
			return
		case <-cleanupTicker.C:
			p.seenTXs = make(map[string]bool)
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	// Verbose mempool gives us the node-side arrival time per entry,
	// which is what the timing analysis needs. Fall back to local
	// clock when an entry is missing.
	verbose, err := p.btcClient.GetRawMempoolVerbose()
	if err != nil {
		log.Printf("[Poller] Error fetching mempool: %v", err)
		return
	}

	// Process up to 5 new transactions per tick to avoid lagging the node too much
	processedCount := 0
	for txidStr, entry := range verbose {
		if p.seenTXs[txidStr] {
			continue
		}
		p.seenTXs[txidStr] = true

		hash, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			continue
		}
		rawTx, err := p.btcClient.GetRawTransaction(hash)
		if err != nil {
			continue
		}

		tx := p.convert(rawTx, entry)

		// Only legacy-spending transactions matter to the engine
		if !tx.IsLegacy() {
			continue
		}

		pattern, err := p.monitor.Observe(ctx, tx)
		if err != nil {
			log.Printf("[Poller] Skipping %s: %v", tx.Txid, err)
			continue
		}
		api.BroadcastPattern(p.wsHub, pattern)

		processedCount++
		if processedCount >= 5 {
			break
		}
	}
}

// convert maps a verbose RPC transaction to the internal model,
// resolving each input's value, address and script type from its
// previous output.
func (p *Poller) convert(rawTx *btcjson.TxRawResult, entry btcjson.GetRawMempoolVerboseResult) models.Transaction {
	tx := models.Transaction{
		Txid:      rawTx.Txid,
		Timestamp: time.Unix(entry.Time, 0),
		Inputs:    make([]models.TxIn, len(rawTx.Vin)),
		Outputs:   make([]models.TxOut, len(rawTx.Vout)),
		Size:      int(rawTx.Vsize),
	}
	if entry.Time == 0 {
		tx.Timestamp = time.Now()
	}

	var totalIn, totalOut int64
	for i, vin := range rawTx.Vin {
		if vin.Txid == "" {
			continue
		}
		// Fetch previous transaction to get input value, address and script type
		prevHash, _ := chainhash.NewHashFromStr(vin.Txid)
		prevTx, err := p.btcClient.GetRawTransaction(prevHash)
		var inValue float64
		var inAddr, scriptType string
		if err == nil && int(vin.Vout) < len(prevTx.Vout) {
			prevOut := prevTx.Vout[vin.Vout]
			inValue = prevOut.Value
			scriptType = normalizeScriptType(prevOut.ScriptPubKey.Type)
			if len(prevOut.ScriptPubKey.Addresses) > 0 {
				inAddr = prevOut.ScriptPubKey.Addresses[0]
			}
		}
		if scriptType == "" && inAddr != "" && bitcoin.IsLegacyAddress(inAddr) {
			scriptType = "p2pkh"
		}
		valSats := int64(inValue * 100000000)
		tx.Inputs[i] = models.TxIn{
			Txid:       vin.Txid,
			Vout:       vin.Vout,
			Value:      valSats,
			Address:    inAddr,
			ScriptType: scriptType,
			SignatureR: signatureR(vin),
		}
		totalIn += valSats
	}

	for i, vout := range rawTx.Vout {
		valSats := int64(vout.Value * 100000000)
		var outAddr string
		if len(vout.ScriptPubKey.Addresses) > 0 {
			outAddr = vout.ScriptPubKey.Addresses[0]
		}
		tx.Outputs[i] = models.TxOut{
			Value:   valSats,
			Address: outAddr,
		}
		totalOut += valSats
	}

	tx.Fee = totalIn - totalOut
	if tx.Fee < 0 {
		tx.Fee = 0
	}
	if entry.Fee > 0 {
		tx.Fee = int64(entry.Fee * 100000000)
	}
	return tx
}

// normalizeScriptType maps Bitcoin Core's scriptPubKey type strings onto
// the short forms the engine classifies on.
func normalizeScriptType(coreType string) string {
	switch coreType {
	case "pubkeyhash":
		return "p2pkh"
	case "pubkey":
		return "p2pk"
	case "scripthash":
		return "p2sh"
	case "witness_v0_keyhash":
		return "p2wpkh"
	case "witness_v0_scripthash":
		return "p2wsh"
	case "witness_v1_taproot":
		return "p2tr"
	}
	return coreType
}

// signatureR extracts the hex-encoded R value from a spend's DER
// signature. Legacy inputs carry the signature as the first push of
// scriptSig; segwit inputs carry it as the first witness element. An
// empty string means no parseable signature, which the nonce analysis
// treats as absent data rather than an anomaly.
func signatureR(vin btcjson.Vin) string {
	var sigHex string
	switch {
	case vin.ScriptSig != nil && vin.ScriptSig.Hex != "":
		script, err := hex.DecodeString(vin.ScriptSig.Hex)
		if err != nil || len(script) < 2 {
			return ""
		}
		// First push opcode is the signature length for canonical P2PKH spends
		pushLen := int(script[0])
		if pushLen == 0 || pushLen > 75 || len(script) < 1+pushLen {
			return ""
		}
		sigHex = hex.EncodeToString(script[1 : 1+pushLen])
	case len(vin.Witness) > 0:
		sigHex = vin.Witness[0]
	default:
		return ""
	}
	return derSignatureR(sigHex)
}

// derSignatureR pulls R out of a DER-encoded ECDSA signature:
// 0x30 <len> 0x02 <rlen> <r> 0x02 <slen> <s> <sighash>
func derSignatureR(sigHex string) string {
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) < 6 || sig[0] != 0x30 || sig[2] != 0x02 {
		return ""
	}
	rLen := int(sig[3])
	if rLen == 0 || len(sig) < 4+rLen {
		return ""
	}
	r := sig[4 : 4+rLen]
	// Strip the sign-padding byte so identical nonces compare equal
	for len(r) > 1 && r[0] == 0x00 {
		r = r[1:]
	}
	return hex.EncodeToString(r)
}
