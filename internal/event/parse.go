package event

import (
	"encoding/json"
	"fmt"
)

// wireEvent is the indexer's JSON envelope: the op payload arrives as a raw
// message decoded by kind.
type wireEvent struct {
	Event             Kind            `json:"event"`
	Height            int64           `json:"height"`
	From              string          `json:"from"`
	To                string          `json:"to"`
	InscriptionID     string          `json:"inscriptionId"`
	InscriptionNumber int64           `json:"inscriptionNumber"`
	BlockTime         int64           `json:"blocktime"`
	TxID              string          `json:"txid"`
	Data              string          `json:"data"`
	Op                json.RawMessage `json:"op"`
}

// ParseOpEvent decodes one indexer event. Unknown kinds fail here so the
// replay layer can decide whether to skip or abort.
func ParseOpEvent(raw []byte) (*OpEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if !w.Event.Known() {
		return nil, fmt.Errorf("unknown event kind %q (txid %s)", w.Event, w.TxID)
	}

	op, err := parseOp(w.Event, w.Op)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload (txid %s): %w", w.Event, w.TxID, err)
	}

	return &OpEvent{
		Event:             w.Event,
		Op:                op,
		Height:            w.Height,
		From:              w.From,
		To:                w.To,
		InscriptionID:     w.InscriptionID,
		InscriptionNumber: w.InscriptionNumber,
		BlockTime:         w.BlockTime,
		TxID:              w.TxID,
		Data:              w.Data,
	}, nil
}

func parseOp(kind Kind, raw json.RawMessage) (Op, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing op payload")
	}

	switch kind {
	case KindDeploy:
		var op DeployOp
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		return op, nil
	case KindTransfer:
		var op TransferOp
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		return op, nil
	case KindCommit:
		var op CommitOp
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		return op, nil
	case KindApprove:
		var op ApproveOp
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		return op, nil
	case KindConditionalApprove:
		var op ConditionalApproveOp
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		return op, nil
	}
	return nil, fmt.Errorf("unhandled kind %q", kind)
}

// MarshalOp re-encodes an op payload for persistence rows.
func MarshalOp(op Op) ([]byte, error) {
	return json.Marshal(op)
}
