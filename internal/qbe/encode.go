// Package qbe holds the glue between the QBE form and the admin: encoding a
// query definition, deriving its hash and keeping pending definitions in
// the user's session.
package qbe

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"qbeAdmin/internal/models"
)

// SessionKeyPrefix prefixes every pending query stored in the session.
const SessionKeyPrefix = "qbe_query_"

// Encode serializes a query definition. The output only depends on the value
// of def, so it is safe to hash.
func Encode(def models.QueryDefinition) ([]byte, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode query definition: %w", err)
	}
	return data, nil
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (models.QueryDefinition, error) {
	var def models.QueryDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return models.QueryDefinition{}, fmt.Errorf("decode query definition: %w", err)
	}
	return def, nil
}

// Hash derives the lookup key for encoded query data. It is an identifier,
// not a tamper check.
func Hash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// QueryHash is Hash(Encode(def)).
func QueryHash(def models.QueryDefinition) (string, error) {
	data, err := Encode(def)
	if err != nil {
		return "", err
	}
	return Hash(data), nil
}

// SessionKey returns the session key under which the pending query with the
// given hash lives.
func SessionKey(hash string) string {
	return SessionKeyPrefix + hash
}
