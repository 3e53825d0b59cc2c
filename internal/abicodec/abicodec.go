// Package abicodec implements the AbiCodec collaborator spec.md leaves
// external: resolving a 4-byte selector to a function, decoding call
// inputs into typed tokens, and type-checking them.
//
// Grounded on original_source/src/txpool.rs's selector-to-function
// dispatch (decode_trade_params/get_params_from_name), reimplemented on
// top of go-ethereum's accounts/abi instead of ethers-rs, the way
// v2protocol.rs::Protocol::new loads factory_abi/router_abi from a file
// path named in protocols.json.
package abicodec

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/dibbydoda/arbbot-go/internal/arberr"
)

// Codec resolves selectors and decodes calldata against one contract's ABI.
type Codec struct {
	contractABI abi.ABI
}

// Load parses a router/factory ABI JSON file at path.
func Load(path string) (*Codec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading abi %s: %v", arberr.ErrConfig, path, err)
	}
	var parsed abi.ABI
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing abi %s: %v", arberr.ErrConfig, path, err)
	}
	return &Codec{contractABI: parsed}, nil
}

// ResolveSelector takes the first 4 bytes of calldata and resolves them
// to a known function of this ABI.
func (c *Codec) ResolveSelector(calldata []byte) (*abi.Method, error) {
	if len(calldata) < 4 {
		return nil, fmt.Errorf("%w: calldata shorter than 4 bytes", arberr.ErrUnknownSelector)
	}
	method, err := c.contractABI.MethodById(calldata[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: selector %x: %v", arberr.ErrUnknownSelector, calldata[:4], err)
	}
	return method, nil
}

// DecodeInputs decodes the calldata (minus the 4-byte selector) into a
// positional token list per method's input parameter list.
func (c *Codec) DecodeInputs(method *abi.Method, calldata []byte) ([]interface{}, error) {
	if len(calldata) < 4 {
		return nil, fmt.Errorf("%w: calldata shorter than 4 bytes", arberr.ErrAbiTypeMismatch)
	}
	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: unpacking %s: %v", arberr.ErrAbiTypeMismatch, method.Name, err)
	}
	return values, nil
}

// TypeCheck verifies decoded tokens match method's declared Go types
// positionally. Unpack already enforces this in practice; tradedecoder
// runs it as a defensive re-check on every decode, before any
// ETH-value splice (which inserts a field the ABI itself never
// declares and so cannot be length-checked against method.Inputs).
func (c *Codec) TypeCheck(method *abi.Method, tokens []interface{}) error {
	if len(tokens) != len(method.Inputs) {
		return fmt.Errorf("%w: %s expects %d args, got %d", arberr.ErrAbiTypeMismatch, method.Name, len(method.Inputs), len(tokens))
	}
	for i, arg := range method.Inputs {
		want := arg.Type.GetType()
		got := reflect.TypeOf(tokens[i])
		if got != nil && want != nil && got != want && !got.ConvertibleTo(want) {
			return fmt.Errorf("%w: %s arg %d: want %v got %v", arberr.ErrAbiTypeMismatch, method.Name, i, want, got)
		}
	}
	return nil
}
