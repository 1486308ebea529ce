package onchain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs, trimmed to the methods and events the client uses.
var (
	lmsrABI    abi.ABI
	ctfABI     abi.ABI
	wethABI    abi.ABI
	adapterABI abi.ABI
	ooABI      abi.ABI
)

func mustABI(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return parsed
}

func init() {
	lmsrABI = mustABI("lmsr", `[
		{"name": "stage", "type": "function", "stateMutability": "view", "inputs": [],
		 "outputs": [{"name": "", "type": "uint8"}]},
		{"name": "fee", "type": "function", "stateMutability": "view", "inputs": [],
		 "outputs": [{"name": "", "type": "uint64"}]},
		{"name": "owner", "type": "function", "stateMutability": "view", "inputs": [],
		 "outputs": [{"name": "", "type": "address"}]},
		{"name": "funding", "type": "function", "stateMutability": "view", "inputs": [],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "calcMarginalPrice", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "outcomeTokenIndex", "type": "uint8"}],
		 "outputs": [{"name": "price", "type": "uint256"}]},
		{"name": "calcNetCost", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "outcomeTokenAmounts", "type": "int256[]"}],
		 "outputs": [{"name": "netCost", "type": "int256"}]},
		{"name": "liquidityShares", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "account", "type": "address"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "totalShares", "type": "function", "stateMutability": "view", "inputs": [],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "getPendingFees", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "account", "type": "address"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "getSharePercentage", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "account", "type": "address"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "trade", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [
			{"name": "outcomeTokenAmounts", "type": "int256[]"},
			{"name": "collateralLimit", "type": "int256"}
		 ],
		 "outputs": [{"name": "netCost", "type": "int256"}]},
		{"name": "addLiquidity", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [{"name": "amount", "type": "uint256"}], "outputs": []},
		{"name": "withdrawLiquidity", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [], "outputs": []},
		{"name": "redeemPositions", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [], "outputs": []},
		{"name": "withdrawFees", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [], "outputs": [{"name": "fees", "type": "uint256"}]},
		{"name": "pause", "type": "function", "stateMutability": "nonpayable", "inputs": [], "outputs": []},
		{"name": "resume", "type": "function", "stateMutability": "nonpayable", "inputs": [], "outputs": []},
		{"name": "close", "type": "function", "stateMutability": "nonpayable", "inputs": [], "outputs": []},
		{"name": "changeFee", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [{"name": "_fee", "type": "uint64"}], "outputs": []},
		{"name": "AMMFeeWithdrawal", "type": "event", "anonymous": false,
		 "inputs": [{"name": "fees", "type": "uint256", "indexed": false}]}
	]`)

	ctfABI = mustABI("conditional tokens", `[
		{"name": "payoutDenominator", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "", "type": "bytes32"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "payoutNumerators", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "", "type": "bytes32"}, {"name": "", "type": "uint256"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "getOutcomeSlotCount", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "conditionId", "type": "bytes32"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "getCollectionId", "type": "function", "stateMutability": "view",
		 "inputs": [
			{"name": "parentCollectionId", "type": "bytes32"},
			{"name": "conditionId", "type": "bytes32"},
			{"name": "indexSet", "type": "uint256"}
		 ],
		 "outputs": [{"name": "", "type": "bytes32"}]},
		{"name": "balanceOf", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "owner", "type": "address"}, {"name": "id", "type": "uint256"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "isApprovedForAll", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "owner", "type": "address"}, {"name": "operator", "type": "address"}],
		 "outputs": [{"name": "", "type": "bool"}]},
		{"name": "setApprovalForAll", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [{"name": "operator", "type": "address"}, {"name": "approved", "type": "bool"}],
		 "outputs": []},
		{"name": "redeemPositions", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [
			{"name": "collateralToken", "type": "address"},
			{"name": "parentCollectionId", "type": "bytes32"},
			{"name": "conditionId", "type": "bytes32"},
			{"name": "indexSets", "type": "uint256[]"}
		 ],
		 "outputs": []},
		{"name": "reportPayouts", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [{"name": "questionId", "type": "bytes32"}, {"name": "payouts", "type": "uint256[]"}],
		 "outputs": []}
	]`)

	wethABI = mustABI("weth9", `[
		{"name": "decimals", "type": "function", "stateMutability": "view", "inputs": [],
		 "outputs": [{"name": "", "type": "uint8"}]},
		{"name": "balanceOf", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "", "type": "address"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "allowance", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "", "type": "address"}, {"name": "", "type": "address"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "approve", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [{"name": "guy", "type": "address"}, {"name": "wad", "type": "uint256"}],
		 "outputs": [{"name": "", "type": "bool"}]},
		{"name": "deposit", "type": "function", "stateMutability": "payable", "inputs": [], "outputs": []},
		{"name": "withdraw", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [{"name": "wad", "type": "uint256"}], "outputs": []}
	]`)

	adapterABI = mustABI("oracle adapter", `[
		{"name": "getQuestion", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "questionID", "type": "bytes32"}],
		 "outputs": [{"name": "", "type": "tuple", "components": [
			{"name": "requestTimestamp", "type": "uint256"},
			{"name": "reward", "type": "uint256"},
			{"name": "proposalBond", "type": "uint256"},
			{"name": "liveness", "type": "uint256"},
			{"name": "manualResolutionTimestamp", "type": "uint256"},
			{"name": "resolved", "type": "bool"},
			{"name": "paused", "type": "bool"},
			{"name": "reset", "type": "bool"},
			{"name": "refund", "type": "bool"},
			{"name": "rewardToken", "type": "address"},
			{"name": "creator", "type": "address"},
			{"name": "ancillaryData", "type": "bytes"}
		 ]}]},
		{"name": "ready", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "questionID", "type": "bytes32"}],
		 "outputs": [{"name": "", "type": "bool"}]},
		{"name": "resolve", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [{"name": "questionID", "type": "bytes32"}], "outputs": []},
		{"name": "QuestionInitialized", "type": "event", "anonymous": false, "inputs": [
			{"name": "questionID", "type": "bytes32", "indexed": true},
			{"name": "requestTimestamp", "type": "uint256", "indexed": true},
			{"name": "creator", "type": "address", "indexed": true},
			{"name": "ancillaryData", "type": "bytes", "indexed": false},
			{"name": "rewardToken", "type": "address", "indexed": false},
			{"name": "reward", "type": "uint256", "indexed": false},
			{"name": "proposalBond", "type": "uint256", "indexed": false}
		]},
		{"name": "QuestionResolved", "type": "event", "anonymous": false, "inputs": [
			{"name": "questionID", "type": "bytes32", "indexed": true},
			{"name": "settledPrice", "type": "int256", "indexed": true},
			{"name": "payouts", "type": "uint256[]", "indexed": false}
		]}
	]`)

	ooABI = mustABI("optimistic oracle", `[
		{"name": "getRequest", "type": "function", "stateMutability": "view",
		 "inputs": [
			{"name": "requester", "type": "address"},
			{"name": "identifier", "type": "bytes32"},
			{"name": "timestamp", "type": "uint256"},
			{"name": "ancillaryData", "type": "bytes"}
		 ],
		 "outputs": [{"name": "", "type": "tuple", "components": [
			{"name": "proposer", "type": "address"},
			{"name": "disputer", "type": "address"},
			{"name": "currency", "type": "address"},
			{"name": "settled", "type": "bool"},
			{"name": "requestSettings", "type": "tuple", "components": [
				{"name": "eventBased", "type": "bool"},
				{"name": "refundOnDispute", "type": "bool"},
				{"name": "callbackOnPriceProposed", "type": "bool"},
				{"name": "callbackOnPriceDisputed", "type": "bool"},
				{"name": "callbackOnPriceSettled", "type": "bool"},
				{"name": "bond", "type": "uint256"},
				{"name": "customLiveness", "type": "uint256"}
			]},
			{"name": "proposedPrice", "type": "int256"},
			{"name": "resolvedPrice", "type": "int256"},
			{"name": "expirationTime", "type": "uint256"},
			{"name": "reward", "type": "uint256"},
			{"name": "finalFee", "type": "uint256"}
		 ]}]},
		{"name": "proposePrice", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [
			{"name": "requester", "type": "address"},
			{"name": "identifier", "type": "bytes32"},
			{"name": "timestamp", "type": "uint256"},
			{"name": "ancillaryData", "type": "bytes"},
			{"name": "proposedPrice", "type": "int256"}
		 ],
		 "outputs": [{"name": "totalBond", "type": "uint256"}]},
		{"name": "disputePrice", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [
			{"name": "requester", "type": "address"},
			{"name": "identifier", "type": "bytes32"},
			{"name": "timestamp", "type": "uint256"},
			{"name": "ancillaryData", "type": "bytes"}
		 ],
		 "outputs": [{"name": "totalBond", "type": "uint256"}]},
		{"name": "settle", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [
			{"name": "requester", "type": "address"},
			{"name": "identifier", "type": "bytes32"},
			{"name": "timestamp", "type": "uint256"},
			{"name": "ancillaryData", "type": "bytes"}
		 ],
		 "outputs": [{"name": "payout", "type": "uint256"}]}
	]`)
}
