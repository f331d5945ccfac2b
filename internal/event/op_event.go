package event

import "fmt"

// Kind discriminates chain event payloads.
type Kind string

const (
	KindDeploy             Kind = "deploy"
	KindTransfer           Kind = "transfer"
	KindCommit             Kind = "commit"
	KindApprove            Kind = "approve"
	KindConditionalApprove Kind = "conditional-approve"
)

// Known reports whether k is a member of the closed kind enumeration.
func (k Kind) Known() bool {
	switch k {
	case KindDeploy, KindTransfer, KindCommit, KindApprove, KindConditionalApprove:
		return true
	}
	return false
}

// OpEvent is one immutable chain action as reported by the indexer.
// Events are totally ordered by (Height, InscriptionNumber) in principle,
// but the log source may reorder on refetch — replay relies on relative
// order within a single fetch pass, never on stability across fetches.
type OpEvent struct {
	Event             Kind   `json:"event"`
	Op                Op     `json:"-"`
	Height            int64  `json:"height"`
	From              string `json:"from"`
	To                string `json:"to"`
	InscriptionID     string `json:"inscriptionId"`
	InscriptionNumber int64  `json:"inscriptionNumber"`
	BlockTime         int64  `json:"blocktime"`
	TxID              string `json:"txid"`
	Data              string `json:"data"`
}

// Identity is the natural key used for every durable upsert of this event.
func (e *OpEvent) Identity() string {
	return fmt.Sprintf("%s:%s:%s", e.Event, e.InscriptionID, e.TxID)
}
