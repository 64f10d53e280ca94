package solana

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

const (
	PublicKeySize = 32
	SignatureSize = 64

	systemTransferInstruction = 2
)

// SystemProgramID is 11111111111111111111111111111111.
var SystemProgramID PublicKey

var ErrInvalidAddress = errors.New("invalid solana address")

type PublicKey [PublicKeySize]byte

func (k PublicKey) String() string { return base58.Encode(k[:]) }

// ParsePublicKey decodes a base58 address and checks it is 32 bytes.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	b := base58.Decode(s)
	if len(b) != PublicKeySize {
		return k, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	copy(k[:], b)
	return k, nil
}

// TransferTx is a signed legacy transaction with a single System Program transfer.
type TransferTx struct {
	Signature []byte
	Message   []byte
}

// SignatureString is the transaction id.
func (t *TransferTx) SignatureString() string { return base58.Encode(t.Signature) }

// Serialize returns the wire format: compact signature count, signatures, message.
func (t *TransferTx) Serialize() []byte {
	out := appendCompactU16(nil, 1)
	out = append(out, t.Signature...)
	return append(out, t.Message...)
}

// BuildTransfer signs a transfer of lamports from the key owner to `to`.
func BuildTransfer(from ed25519.PrivateKey, to PublicKey, lamports uint64, recentBlockhash string) (*TransferTx, error) {
	if len(from) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid signing key")
	}
	if lamports == 0 {
		return nil, errors.New("transfer amount must be positive")
	}
	hash := base58.Decode(recentBlockhash)
	if len(hash) != 32 {
		return nil, fmt.Errorf("invalid blockhash %q", recentBlockhash)
	}
	fromKey := PublicKeyOf(from)
	if fromKey == to {
		return nil, errors.New("transfer destination is the source account")
	}

	msg := transferMessage(fromKey, to, lamports, hash)
	return &TransferTx{Signature: ed25519.Sign(from, msg), Message: msg}, nil
}

func transferMessage(from, to PublicKey, lamports uint64, blockhash []byte) []byte {
	// one signer, no read-only signers, one read-only unsigned account (the program)
	msg := []byte{1, 0, 1}

	msg = appendCompactU16(msg, 3)
	msg = append(msg, from[:]...)
	msg = append(msg, to[:]...)
	msg = append(msg, SystemProgramID[:]...)
	msg = append(msg, blockhash...)

	data := binary.LittleEndian.AppendUint32(nil, systemTransferInstruction)
	data = binary.LittleEndian.AppendUint64(data, lamports)

	msg = appendCompactU16(msg, 1)
	msg = append(msg, 2) // program id index
	msg = appendCompactU16(msg, 2)
	msg = append(msg, 0, 1)
	msg = appendCompactU16(msg, len(data))
	return append(msg, data...)
}

func appendCompactU16(b []byte, n int) []byte {
	v := uint16(n)
	for {
		elem := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}
