package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 encoded account address.
const AddressPrefix = "dcv"

// Address represents a 20-byte drought-cover account address.
type Address struct {
	bytes []byte
}

// ZeroAddress is the sentinel buyer for open policy offers: any party that
// pays the premium first claims the buyer seat.
var ZeroAddress = Address{bytes: make([]byte, 20)}

func NewAddress(b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes long, got %d", len(b))
	}
	return Address{bytes: append([]byte(nil), b...)}, nil
}

// FromBytes20 wraps a fixed-size address array.
func FromBytes20(b [20]byte) Address {
	return Address{bytes: append([]byte(nil), b[:]...)}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.Bytes(), 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	if a.bytes == nil {
		return make([]byte, 20)
	}
	return a.bytes
}

// Array returns the address as a fixed-size array for map keys and comparisons.
func (a Address) Array() [20]byte {
	var out [20]byte
	copy(out[:], a.Bytes())
	return out
}

// IsZero reports whether the address is the open-offer sentinel.
func (a Address) IsZero() bool {
	return bytes.Equal(a.Bytes(), ZeroAddress.Bytes())
}

// DecodeAddress parses a bech32 account address and verifies the prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func (p *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&p.PublicKey}
}

// Address derives the account address from the public key: the last 20 bytes
// of the keccak256 hash of the uncompressed key, as on EVM chains.
func (p *PublicKey) Address() Address {
	eth := crypto.PubkeyToAddress(*p.PublicKey)
	addr, _ := NewAddress(eth.Bytes())
	return addr
}
