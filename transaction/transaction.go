// Package transaction defines the action and transaction shapes the
// authorization manager inspects, and the deferred-transaction record that
// canceldelay authorization consults.
//
// Transactions here carry only what authorization needs: actions with
// their declared authorization levels and opaque payloads. Dispatch, fees,
// and scheduling live in the host.
package transaction

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/codec"
	"github.com/Bitconch/authz/name"
)

// ID is a transaction identifier: the blake3-256 digest of the
// transaction's deterministic encoding.
type ID [32]byte

func (id ID) String() string { return hex.EncodeToString(id[:]) }

// ParseID decodes a hex transaction ID.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return ID{}, fmt.Errorf("transaction: invalid id %q", s)
	}
	copy(id[:], b)
	return id, nil
}

// Action is a single call into a contract, with the authorization levels
// the transaction declares for it.
type Action struct {
	Account       name.AccountName            `json:"account" cbor:"account"`
	Name          name.ActionName             `json:"name" cbor:"name"`
	Authorization []authority.PermissionLevel `json:"authorization" cbor:"authorization"`
	Data          []byte                      `json:"data,omitempty" cbor:"data,omitempty"`
}

// DataAs decodes the action payload into v. Native action payloads all
// decode through here.
func (a *Action) DataAs(v any) error {
	if err := codec.Unmarshal(a.Data, v); err != nil {
		return fmt.Errorf("transaction: decode %s::%s payload: %w", a.Account, a.Name, err)
	}
	return nil
}

// NewAction encodes payload and builds an action. Payloads of nil encode
// to an empty Data.
func NewAction(account name.AccountName, action name.ActionName, auths []authority.PermissionLevel, payload any) (*Action, error) {
	act := &Action{Account: account, Name: action, Authorization: auths}
	if payload != nil {
		data, err := codec.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("transaction: encode %s::%s payload: %w", account, action, err)
		}
		act.Data = data
	}
	return act, nil
}

// Transaction is an ordered list of actions.
type Transaction struct {
	Actions []*Action `json:"actions" cbor:"actions"`
}

// Pack returns the deterministic encoding of the transaction.
func (t *Transaction) Pack() ([]byte, error) {
	data, err := codec.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("transaction: pack: %w", err)
	}
	return data, nil
}

// Unpack decodes a packed transaction.
func Unpack(data []byte) (*Transaction, error) {
	var t Transaction
	if err := codec.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("transaction: unpack: %w", err)
	}
	return &t, nil
}

// ID returns the transaction's content hash.
func (t *Transaction) ID() (ID, error) {
	data, err := t.Pack()
	if err != nil {
		return ID{}, err
	}
	return blake3.Sum256(data), nil
}

// Deferred is a scheduled transaction awaiting its delay. Sender is empty
// for user-originated delayed transactions; only those may be canceled
// through canceldelay.
type Deferred struct {
	TrxID      ID               `json:"trx_id"`
	Sender     name.AccountName `json:"sender"`
	Published  time.Time        `json:"published"`
	DelayUntil time.Time        `json:"delay_until"`
	PackedTrx  []byte           `json:"packed_trx"`
}
