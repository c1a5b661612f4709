package solpay

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"solpay-gateway/internal/domain"
)

var le = binary.LittleEndian

func writeString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), le); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

func writeKey(enc *bin.Encoder, k solana.PublicKey) error {
	return enc.WriteBytes(k[:], false)
}

func writeKeys(enc *bin.Encoder, ks []solana.PublicKey) error {
	if err := enc.WriteUint32(uint32(len(ks)), le); err != nil {
		return err
	}
	for _, k := range ks {
		if err := writeKey(enc, k); err != nil {
			return err
		}
	}
	return nil
}

func readString(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint32(le)
	if err != nil {
		return "", err
	}
	if int(n) > dec.Remaining() {
		return "", fmt.Errorf("%w: string length %d exceeds data", domain.ErrMalformedAccount, n)
	}
	b, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

func readKeys(dec *bin.Decoder) ([]solana.PublicKey, error) {
	n, err := dec.ReadUint32(le)
	if err != nil {
		return nil, err
	}
	if int(n)*solana.PublicKeyLength > dec.Remaining() {
		return nil, fmt.Errorf("%w: vec length %d exceeds data", domain.ErrMalformedAccount, n)
	}
	out := make([]solana.PublicKey, 0, n)
	for i := uint32(0); i < n; i++ {
		k, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func readDiscriminator(dec *bin.Decoder, want Discriminator) error {
	b, err := dec.ReadNBytes(len(want))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedAccount, err)
	}
	if Discriminator(b) != want {
		return fmt.Errorf("%w: discriminator mismatch", domain.ErrMalformedAccount)
	}
	return nil
}
