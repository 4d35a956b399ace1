package helpers

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
)

func StringToInt(s string) (int, error) {
	return strconv.Atoi(s)
}

// NewTicketReference returns a globally unique, human-presentable
// ticket reference like TKT-3F9A01BC.
func NewTicketReference() (string, error) {
	raw := make([]byte, 4)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "TKT-" + strings.ToUpper(hex.EncodeToString(raw)), nil
}
