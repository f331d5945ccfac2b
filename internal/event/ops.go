package event

// Op is the tagged union of inscription payloads. Dispatch is an exhaustive
// type switch over the concrete variants, never runtime field inspection.
type Op interface {
	OpKind() Kind
}

// DeployOp creates the swap module itself (genesis of the ledger).
type DeployOp struct {
	Module string `json:"module"`
	Source string `json:"source"`
	Init   string `json:"init"`
}

func (DeployOp) OpKind() Kind { return KindDeploy }

// TransferOp is a direct deposit into the module: an inscribed transfer of
// tick/amount sent to the module address.
type TransferOp struct {
	Tick   string `json:"tick"`
	Amount string `json:"amt"`
}

func (TransferOp) OpKind() Kind { return KindTransfer }

// ContractCall is one function invocation inside a commit batch.
type ContractCall struct {
	Func      string   `json:"func"`
	Params    []string `json:"params"`
	Address   string   `json:"addr"`
	Timestamp int64    `json:"ts"`
}

// Contract function names carried in commit calls.
const (
	FuncDeployPool = "deployPool"
	FuncAddLiq     = "addLiq"
	FuncRemoveLiq  = "removeLiq"
	FuncSwap       = "swap"
	FuncSend       = "send"
)

// CommitOp carries an ordered batch of contract calls settled on-chain in
// one inscription.
type CommitOp struct {
	Module   string         `json:"module"`
	Parent   string         `json:"parent"`
	GasPrice string         `json:"gas_price"`
	Calls    []ContractCall `json:"data"`
}

func (CommitOp) OpKind() Kind { return KindCommit }

// ApproveOp releases a previously inscribed balance for withdrawal.
type ApproveOp struct {
	Tick   string `json:"tick"`
	Amount string `json:"amt"`
}

func (ApproveOp) OpKind() Kind { return KindApprove }

// ConditionalApproveOp is a withdrawal approval that may be matched against
// an incoming transfer; Transfer references the matching inscription.
type ConditionalApproveOp struct {
	Tick     string `json:"tick"`
	Amount   string `json:"amt"`
	Transfer string `json:"transfer"`
}

func (ConditionalApproveOp) OpKind() Kind { return KindConditionalApprove }
