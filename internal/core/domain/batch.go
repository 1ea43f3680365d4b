package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrMalformedBatch is returned when a queue payload cannot be decoded into a batch.
var ErrMalformedBatch = errors.New("malformed batch")

// EncodeBatch serializes contracts to the queue wire format.
func EncodeBatch(contracts []ContractToAnalyze) ([]byte, error) {
	if contracts == nil {
		contracts = []ContractToAnalyze{}
	}
	data, err := json.Marshal(contracts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	return data, nil
}

// DecodeBatch parses a queue payload. Every element must carry both id and source_code.
func DecodeBatch(body []byte) ([]ContractToAnalyze, error) {
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("%w: body is not valid UTF-8", ErrMalformedBatch)
	}

	var raw []struct {
		ID         *int64  `json:"id"`
		SourceCode *string `json:"source_code"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: payload is not an array", ErrMalformedBatch)
	}

	contracts := make([]ContractToAnalyze, 0, len(raw))
	for i, item := range raw {
		if item.ID == nil || item.SourceCode == nil {
			return nil, fmt.Errorf("%w: element %d is missing id or source_code", ErrMalformedBatch, i)
		}
		contracts = append(contracts, ContractToAnalyze{ID: *item.ID, SourceCode: *item.SourceCode})
	}
	return contracts, nil
}

// ContractIDs extracts the IDs of a batch in order.
func ContractIDs(contracts []ContractToAnalyze) []int64 {
	ids := make([]int64, 0, len(contracts))
	for _, c := range contracts {
		ids = append(ids, c.ID)
	}
	return ids
}
