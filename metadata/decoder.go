// Package metadata decodes the on-chain token metadata documents returned by
// tokenURI. The contract embeds them as data URIs of the form
// data:application/json;base64,<payload>.
package metadata

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/vitwit/tiermint/types"
)

const dataURIPrefix = "data:application/json;base64,"

// Decode parses a token URI into NFTMetadata. Everything after the first
// comma is treated as base64 encoded JSON. name and image are required.
func Decode(tokenURI string) (types.NFTMetadata, error) {
	idx := strings.IndexByte(tokenURI, ',')
	if idx < 0 {
		return types.NFTMetadata{}, malformed(nil, "token URI has no comma separator")
	}

	payload := strings.TrimSpace(tokenURI[idx+1:])
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some contracts strip the padding
		var rawErr error
		if raw, rawErr = base64.RawStdEncoding.DecodeString(payload); rawErr != nil {
			return types.NFTMetadata{}, malformed(err, "token URI payload is not valid base64")
		}
	}

	if !gjson.ValidBytes(raw) {
		return types.NFTMetadata{}, malformed(nil, "token URI payload is not valid JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return types.NFTMetadata{}, malformed(nil, "token metadata is not a JSON object")
	}

	name := doc.Get("name")
	if !name.Exists() || name.Type != gjson.String {
		return types.NFTMetadata{}, malformed(nil, "token metadata is missing name")
	}
	image := doc.Get("image")
	if !image.Exists() || image.Type != gjson.String {
		return types.NFTMetadata{}, malformed(nil, "token metadata is missing image")
	}

	meta := types.NFTMetadata{
		Name:        name.String(),
		Description: doc.Get("description").String(),
		Image:       image.String(),
	}
	meta.Attributes = decodeAttributes(doc.Get("attributes"))
	return meta, nil
}

// decodeAttributes accepts the OpenSea array form
// [{"trait_type": k, "value": v}] as well as a plain object {k: v}.
func decodeAttributes(attrs gjson.Result) []types.Attribute {
	var out []types.Attribute
	switch {
	case attrs.IsArray():
		attrs.ForEach(func(_, item gjson.Result) bool {
			key := item.Get("trait_type")
			if !key.Exists() {
				key = item.Get("key")
			}
			if !key.Exists() {
				return true
			}
			out = append(out, types.Attribute{Key: key.String(), Value: item.Get("value").String()})
			return true
		})
	case attrs.IsObject():
		attrs.ForEach(func(key, value gjson.Result) bool {
			out = append(out, types.Attribute{Key: key.String(), Value: value.String()})
			return true
		})
	}
	return out
}

// EncodeDataURI is the inverse of Decode.
func EncodeDataURI(meta types.NFTMetadata) (string, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

func malformed(cause error, msg string) error {
	return &types.MintError{
		Code:    types.ErrMalformedMetadata,
		Message: msg,
		Err:     cause,
	}
}
