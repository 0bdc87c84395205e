package cache

import (
	"fmt"
	"math/big"
)

type Kind int

const (
	KindTotalSupply Kind = iota
	KindTokenURI
)

func (k Kind) String() string {
	switch k {
	case KindTotalSupply:
		return "totalSupply"
	case KindTokenURI:
		return "tokenURI"
	default:
		return "unknown"
	}
}

// Query identifies one cached contract read.
type Query struct {
	Kind    Kind
	TokenID *big.Int
}

func TotalSupply() Query {
	return Query{Kind: KindTotalSupply}
}

func TokenURI(tokenID *big.Int) Query {
	return Query{Kind: KindTokenURI, TokenID: new(big.Int).Set(tokenID)}
}

// Key is the cache key of the query.
func (q Query) Key() string {
	if q.Kind == KindTokenURI && q.TokenID != nil {
		return fmt.Sprintf("%s(%s)", q.Kind, q.TokenID)
	}
	return q.Kind.String()
}

func (q Query) String() string { return q.Key() }
