package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"zapkit/internal/model"
)

// ReceiptDecoder decodes the ERC20 and pair events emitted by approve, zap
// and stake transactions.
type ReceiptDecoder struct {
	chainID uint64
	events  map[common.Hash]abi.Event
}

// NewReceiptDecoder builds a decoder for Transfer, Approval and Sync.
func NewReceiptDecoder(chainID uint64) (*ReceiptDecoder, error) {
	erc20, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	pair, err := PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}

	events := make(map[common.Hash]abi.Event)
	for _, event := range []abi.Event{erc20.Events["Transfer"], erc20.Events["Approval"], pair.Events["Sync"]} {
		events[event.ID] = event
	}
	return &ReceiptDecoder{chainID: chainID, events: events}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *ReceiptDecoder) CanDecode(topic0 common.Hash) bool {
	_, ok := d.events[topic0]
	return ok
}

// Decode converts a receipt log into a ReceiptEvent.
func (d *ReceiptDecoder) Decode(log *types.Log) (*model.ReceiptEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	event, ok := d.events[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	var decoded interface{}
	var err error
	switch event.Name {
	case "Transfer":
		decoded, err = decodeTransfer(event, log)
	case "Approval":
		decoded, err = decodeApproval(event, log)
	case "Sync":
		decoded, err = decodeSync(event, log)
	default:
		err = fmt.Errorf("unsupported event name: %s", event.Name)
	}
	if err != nil {
		return nil, err
	}

	return &model.ReceiptEvent{
		ChainID:     d.chainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		EventName:   event.Name,
		Decoded:     decoded,
	}, nil
}

// DecodeReceipt decodes every supported log of a receipt, skipping the rest.
func (d *ReceiptDecoder) DecodeReceipt(receipt *types.Receipt) []model.ReceiptEvent {
	if receipt == nil {
		return nil
	}
	out := make([]model.ReceiptEvent, 0, len(receipt.Logs))
	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 || !d.CanDecode(log.Topics[0]) {
			continue
		}
		if event, err := d.Decode(log); err == nil {
			out = append(out, *event)
		}
	}
	return out
}

// MintedTo sums pool tokens minted by pair to account in receipt.
func (d *ReceiptDecoder) MintedTo(receipt *types.Receipt, pair, account common.Address) *big.Int {
	total := new(big.Int)
	for _, event := range d.DecodeReceipt(receipt) {
		transfer, ok := event.Decoded.(model.TransferEventData)
		if !ok || event.Address != pair.Hex() {
			continue
		}
		if transfer.From != (common.Address{}).Hex() || transfer.To != account.Hex() {
			continue
		}
		if value, ok := new(big.Int).SetString(transfer.Value, 10); ok {
			total.Add(total, value)
		}
	}
	return total
}

func decodeTransfer(event abi.Event, log *types.Log) (model.TransferEventData, error) {
	var indexed struct {
		From common.Address
		To   common.Address
	}
	value, err := decodeOwnerValue(event, log, &indexed)
	if err != nil {
		return model.TransferEventData{}, err
	}
	return model.TransferEventData{
		From:  indexed.From.Hex(),
		To:    indexed.To.Hex(),
		Value: value.String(),
	}, nil
}

func decodeApproval(event abi.Event, log *types.Log) (model.ApprovalEventData, error) {
	var indexed struct {
		Owner   common.Address
		Spender common.Address
	}
	value, err := decodeOwnerValue(event, log, &indexed)
	if err != nil {
		return model.ApprovalEventData{}, err
	}
	return model.ApprovalEventData{
		Owner:   indexed.Owner.Hex(),
		Spender: indexed.Spender.Hex(),
		Value:   value.String(),
	}, nil
}

// decodeOwnerValue parses two indexed addresses into out and the single
// uint256 data word.
func decodeOwnerValue(event abi.Event, log *types.Log, out interface{}) (*big.Int, error) {
	indexedArgs := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexedArgs)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexedArgs)+1, len(log.Topics))
	}
	if err := abi.ParseTopics(out, indexedArgs, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}
	return asBigInt(values[0])
}

func decodeSync(event abi.Event, log *types.Log) (model.SyncEventData, error) {
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.SyncEventData{}, fmt.Errorf("unpack Sync: %w", err)
	}
	if len(values) != 2 {
		return model.SyncEventData{}, fmt.Errorf("unexpected sync values: %d", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return model.SyncEventData{}, err
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return model.SyncEventData{}, err
	}
	return model.SyncEventData{Reserve0: reserve0.String(), Reserve1: reserve1.String()}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
