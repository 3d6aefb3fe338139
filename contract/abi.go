package contract

import (
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultAddress is where the Greeting contract lands on a fresh local dev chain.
	DefaultAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

	methodSend = "sendGreeting"
	methodList = "getGreetings"
	eventNew   = "Greeted"
)

const greetingABI = `[
	{
		"inputs": [{"internalType": "string", "name": "message", "type": "string"}],
		"name": "sendGreeting",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getGreetings",
		"outputs": [{
			"components": [
				{"internalType": "address", "name": "sender", "type": "address"},
				{"internalType": "string", "name": "message", "type": "string"},
				{"internalType": "uint256", "name": "timestamp", "type": "uint256"}
			],
			"internalType": "struct Greeting.GreetingInfo[]",
			"name": "",
			"type": "tuple[]"
		}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
			{"indexed": false, "internalType": "string", "name": "message", "type": "string"},
			{"indexed": false, "internalType": "uint256", "name": "timestamp", "type": "uint256"}
		],
		"name": "Greeted",
		"type": "event"
	}
]`

// parsedABI is the Greeting contract interface, parsed once.
var parsedABI = mustParseABI(greetingABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// greetingInfo mirrors the `GreetingInfo` tuple; field names follow the ABI.
type greetingInfo struct {
	Sender    common.Address
	Message   string
	Timestamp *big.Int
}

// Message is one greeting as stored by the contract. Never mutated locally.
type Message struct {
	Sender    common.Address `json:"sender"`
	Text      string         `json:"text"`
	Timestamp int64          `json:"timestamp"` // seconds since epoch
}

func toMessage(g greetingInfo) Message {
	var ts int64
	if g.Timestamp != nil {
		if g.Timestamp.IsInt64() {
			ts = g.Timestamp.Int64()
		} else if g.Timestamp.Sign() > 0 {
			ts = math.MaxInt64
		}
	}
	return Message{
		Sender:    g.Sender,
		Text:      g.Message,
		Timestamp: ts,
	}
}
