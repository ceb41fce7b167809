package helpers

import (
	"encoding/json"
	"math/rand"
)

// ToJsonString converts any value to JSON string.
func ToJsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// RandomReqID returns a request id for websocket control frames.
func RandomReqID() int {
	min := 10000
	max := 9999999
	return min + rand.Intn(max-min)
}
