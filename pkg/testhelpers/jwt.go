package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// GenerateTestJWT creates an unsigned (alg: none) token for userID, accepted
// when verification is disabled.
func GenerateTestJWT(userID int64, roles ...string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload, _ := json.Marshal(map[string]any{
		"sub":   strconv.FormatInt(userID, 10),
		"exp":   time.Now().Add(time.Hour).Unix(),
		"roles": roles,
	})

	return fmt.Sprintf("%s.%s.", header, base64.RawURLEncoding.EncodeToString(payload))
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(userID int64, roles ...string) string {
	return "Bearer " + GenerateTestJWT(userID, roles...)
}
