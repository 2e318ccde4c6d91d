package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs, reduced to the methods lazkit calls. Struct getters return
// a single tuple, so their return data starts with the tuple offset.

const dataRegistryABIJSON = `[
 {"type":"function","name":"addFile","stateMutability":"nonpayable",
  "inputs":[{"name":"url","type":"string"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"addFileWithHash","stateMutability":"nonpayable",
  "inputs":[{"name":"url","type":"string"},{"name":"hash","type":"string"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getFileIdByUrl","stateMutability":"view",
  "inputs":[{"name":"url","type":"string"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getFile","stateMutability":"view",
  "inputs":[{"name":"fileId","type":"uint256"}],
  "outputs":[{"name":"","type":"tuple","components":[
    {"name":"id","type":"uint256"},{"name":"ownerAddress","type":"address"},
    {"name":"url","type":"string"},{"name":"hash","type":"string"},
    {"name":"proofIndex","type":"uint256"},{"name":"rewardAmount","type":"uint256"}]}]},
 {"type":"function","name":"requestReward","stateMutability":"nonpayable",
  "inputs":[{"name":"fileId","type":"uint256"},{"name":"proofIndex","type":"uint256"}],
  "outputs":[]}
]`

const verifiedComputingABIJSON = `[
 {"type":"function","name":"requestProof","stateMutability":"payable",
  "inputs":[{"name":"fileId","type":"uint256"}],
  "outputs":[]},
 {"type":"function","name":"fileJobIds","stateMutability":"view",
  "inputs":[{"name":"fileId","type":"uint256"}],
  "outputs":[{"name":"","type":"uint256[]"}]},
 {"type":"function","name":"getJob","stateMutability":"view",
  "inputs":[{"name":"jobId","type":"uint256"}],
  "outputs":[{"name":"","type":"tuple","components":[
    {"name":"fileId","type":"uint256"},{"name":"bidAmount","type":"uint256"},
    {"name":"status","type":"uint8"},{"name":"addedTimestamp","type":"uint256"},
    {"name":"ownerAddress","type":"address"},{"name":"nodeAddress","type":"address"}]}]},
 {"type":"function","name":"getNode","stateMutability":"view",
  "inputs":[{"name":"nodeAddress","type":"address"}],
  "outputs":[{"name":"","type":"tuple","components":[
    {"name":"nodeAddress","type":"address"},{"name":"url","type":"string"},
    {"name":"status","type":"uint8"},{"name":"amount","type":"uint256"},
    {"name":"jobsCount","type":"uint256"},{"name":"publicKey","type":"string"}]}]}
]`

const settlementABIJSON = `[
 {"type":"function","name":"addUser","stateMutability":"payable",
  "inputs":[{"name":"amount","type":"uint256"}],
  "outputs":[]},
 {"type":"function","name":"getUser","stateMutability":"view",
  "inputs":[{"name":"user","type":"address"}],
  "outputs":[{"name":"","type":"tuple","components":[
    {"name":"user","type":"address"},{"name":"availableBalance","type":"uint256"},
    {"name":"totalBalance","type":"uint256"},{"name":"inferenceNodes","type":"address[]"},
    {"name":"queryNodes","type":"address[]"}]}]},
 {"type":"function","name":"deposit","stateMutability":"payable",
  "inputs":[{"name":"amount","type":"uint256"}],
  "outputs":[]},
 {"type":"function","name":"depositInference","stateMutability":"nonpayable",
  "inputs":[{"name":"node","type":"address"},{"name":"amount","type":"uint256"}],
  "outputs":[]},
 {"type":"function","name":"depositQuery","stateMutability":"nonpayable",
  "inputs":[{"name":"node","type":"address"},{"name":"amount","type":"uint256"}],
  "outputs":[]}
]`

// aiProcessABIJSON is shared by the inference and query process contracts.
const aiProcessABIJSON = `[
 {"type":"function","name":"getNode","stateMutability":"view",
  "inputs":[{"name":"nodeAddress","type":"address"}],
  "outputs":[{"name":"","type":"tuple","components":[
    {"name":"nodeAddress","type":"address"},{"name":"url","type":"string"},
    {"name":"status","type":"uint8"},{"name":"amount","type":"uint256"},
    {"name":"jobsCount","type":"uint256"},{"name":"publicKey","type":"string"}]}]},
 {"type":"function","name":"getAccount","stateMutability":"view",
  "inputs":[{"name":"user","type":"address"},{"name":"node","type":"address"}],
  "outputs":[{"name":"","type":"tuple","components":[
    {"name":"user","type":"address"},{"name":"node","type":"address"},
    {"name":"nonce","type":"uint256"},{"name":"balance","type":"uint256"}]}]}
]`

var (
	DataRegistryABI      = mustParseABI("DataRegistry", dataRegistryABIJSON)
	VerifiedComputingABI = mustParseABI("VerifiedComputing", verifiedComputingABIJSON)
	SettlementABI        = mustParseABI("Settlement", settlementABIJSON)
	AIProcessABI         = mustParseABI("AIProcess", aiProcessABIJSON)
)

func mustParseABI(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid %s ABI: %v", name, err))
	}
	return parsed
}
