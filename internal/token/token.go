// Package token validates the metadata of a newly launched token and
// resolves its mint address.
package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Byte limits on metadata fields.
const (
	MaxNameLen        = 32
	MaxSymbolLen      = 10
	MaxDescriptionLen = 200
)

var (
	ErrInvalidName        = errors.New("token: invalid name")
	ErrInvalidSymbol      = errors.New("token: invalid symbol")
	ErrDescriptionTooLong = errors.New("token: description too long")
	ErrInvalidMint        = errors.New("token: invalid mint address")
	ErrInvalidCreator     = errors.New("token: invalid creator")
)

// Metadata is the user-supplied description of a token to launch.
type Metadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Creator     string `json:"creator"`
	// Mint is optional; an empty mint gets a freshly generated address.
	Mint string `json:"mint,omitempty"`
}

// Validate checks the metadata and returns a normalized copy: fields are
// trimmed, the symbol upper-cased and the mint canonicalized or generated.
func Validate(m Metadata) (Metadata, error) {
	m.Name = strings.TrimSpace(m.Name)
	m.Symbol = strings.ToUpper(strings.TrimSpace(m.Symbol))
	m.Description = strings.TrimSpace(m.Description)
	m.Creator = strings.TrimSpace(m.Creator)
	m.Mint = strings.TrimSpace(m.Mint)

	if m.Name == "" || len(m.Name) > MaxNameLen {
		return Metadata{}, fmt.Errorf("%w: %q must be 1-%d bytes", ErrInvalidName, m.Name, MaxNameLen)
	}
	if m.Symbol == "" || len(m.Symbol) > MaxSymbolLen {
		return Metadata{}, fmt.Errorf("%w: %q must be 1-%d bytes", ErrInvalidSymbol, m.Symbol, MaxSymbolLen)
	}
	if strings.ContainsAny(m.Symbol, " \t\n") {
		return Metadata{}, fmt.Errorf("%w: %q contains whitespace", ErrInvalidSymbol, m.Symbol)
	}
	if len(m.Description) > MaxDescriptionLen {
		return Metadata{}, fmt.Errorf("%w: %d bytes, max %d", ErrDescriptionTooLong, len(m.Description), MaxDescriptionLen)
	}
	if m.Creator == "" {
		return Metadata{}, fmt.Errorf("%w: creator is required", ErrInvalidCreator)
	}

	mint, err := ResolveMint(m.Mint)
	if err != nil {
		return Metadata{}, err
	}
	m.Mint = mint
	return m, nil
}

// ResolveMint parses a base58 Solana public key, or generates a new one
// when mint is empty.
func ResolveMint(mint string) (string, error) {
	if mint == "" {
		key, err := solana.NewRandomPrivateKey()
		if err != nil {
			return "", fmt.Errorf("generate mint: %w", err)
		}
		return key.PublicKey().String(), nil
	}

	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidMint, mint, err)
	}
	if pk.IsZero() {
		return "", fmt.Errorf("%w: zero address", ErrInvalidMint)
	}
	return pk.String(), nil
}
