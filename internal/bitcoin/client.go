package bitcoin

import (
	"encoding/json"
	"log"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
)

type Client struct {
	RPC    *rpcclient.Client
	Config Config
}

type Config struct {
	Host string
	User string
	Pass string
}

func NewClient(cfg Config) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true, // Bitcoin Core only supports HTTP POST mode
		DisableTLS:   true, // Assuming local node without TLS for this setup
	}

	log.Printf("Connecting to Bitcoin RPC at %s...", cfg.Host)
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, err
	}

	// Verify connection
	blockCount, err := client.GetBlockCount()
	if err != nil {
		client.Shutdown()
		return nil, err
	}

	log.Printf("Connected to Bitcoin Node. Current Block Height: %d", blockCount)

	return &Client{RPC: client, Config: cfg}, nil
}

func (c *Client) Shutdown() {
	c.RPC.Shutdown()
}

// --- RPC Wrappers ---

func (c *Client) GetRawMempool() ([]string, error) {
	// Verbose=false returns []*chainhash.Hash
	hashes, err := c.RPC.GetRawMempool()
	if err != nil {
		return nil, err
	}

	result := make([]string, len(hashes))
	for i, hash := range hashes {
		result[i] = hash.String()
	}
	return result, nil
}

// GetRawMempoolVerbose returns per-entry mempool metadata, most
// importantly the arrival time used to timestamp observations.
// btcjson.GetRawMempoolVerboseResult expects `fee`, while modern
// Bitcoin Core often returns `fees.base`. Decode raw JSON and backfill
// Fee from fees.base so downstream fee math remains accurate.
func (c *Client) GetRawMempoolVerbose() (map[string]btcjson.GetRawMempoolVerboseResult, error) {
	rawResp, err := c.RPC.RawRequest("getrawmempool", []json.RawMessage{
		json.RawMessage(`true`), // verbose=true
	})
	if err != nil {
		return nil, err
	}

	verbose := make(map[string]btcjson.GetRawMempoolVerboseResult)
	if err := json.Unmarshal(rawResp, &verbose); err != nil {
		return nil, err
	}

	var modern map[string]struct {
		Fee  float64 `json:"fee"`
		Fees struct {
			Base float64 `json:"base"`
		} `json:"fees"`
	}
	if err := json.Unmarshal(rawResp, &modern); err == nil {
		for txid, entry := range verbose {
			if entry.Fee > 0 {
				continue
			}
			raw := modern[txid]
			switch {
			case raw.Fees.Base > 0:
				entry.Fee = raw.Fees.Base
			case raw.Fee > 0:
				entry.Fee = raw.Fee
			}
			verbose[txid] = entry
		}
	}

	return verbose, nil
}

func (c *Client) GetRawTransaction(txHash *chainhash.Hash) (*btcjson.TxRawResult, error) {
	// Returns Verbose result
	return c.RPC.GetRawTransactionVerbose(txHash)
}

func (c *Client) GetBlockCount() (int64, error) {
	return c.RPC.GetBlockCount()
}

// GetMempoolInfo returns the result of the getmempoolinfo RPC call
func (c *Client) GetMempoolInfo() (*btcjson.GetMempoolInfoResult, error) {
	rawResp, err := c.RPC.RawRequest("getmempoolinfo", nil)
	if err != nil {
		return nil, err
	}

	var res btcjson.GetMempoolInfoResult
	if err := json.Unmarshal(rawResp, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// IsLegacyAddress reports whether addr is a pay-to-pubkey-hash or
// pay-to-script-hash address, the output types whose spending exposes
// a public key and therefore matters for quantum sweep targeting.
// Undecodable addresses fall back to the conventional base58 prefix
// check so analysis still works on partially-populated data.
func IsLegacyAddress(addr string) bool {
	decoded, err := btcutil.DecodeAddress(addr, &chaincfg.MainNetParams)
	if err != nil {
		return len(addr) > 0 && (addr[0] == '1' || addr[0] == '3')
	}
	switch decoded.(type) {
	case *btcutil.AddressPubKeyHash, *btcutil.AddressScriptHash:
		return true
	}
	return false
}
