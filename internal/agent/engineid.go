package agent

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// enterpriseNumber is the private enterprise number used under the
// configured base OID.
const enterpriseNumber = 99999

// engineIDNamespace scopes derived engine IDs.
var engineIDNamespace = uuid.MustParse("1d0f3c8e-5b4a-4e53-8f8e-6a3b2f1c9d70")

// EngineID returns the SNMP engine ID to advertise. A configured hex string
// wins; otherwise the ID is derived from the host name so it stays stable
// across restarts.
func EngineID(configured string) ([]byte, error) {
	if s := strings.TrimSpace(configured); s != "" {
		s = strings.TrimPrefix(strings.ToLower(s), "0x")
		id, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
		if err != nil {
			return nil, fmt.Errorf("engine id is not hex: %w", err)
		}
		if len(id) < 5 || len(id) > 32 {
			return nil, fmt.Errorf("engine id must be 5 to 32 bytes, got %d", len(id))
		}
		return id, nil
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return DeriveEngineID(host), nil
}

// DeriveEngineID builds an RFC 3411 engine ID in the "octets" format from
// a name-based UUID of seed.
func DeriveEngineID(seed string) []byte {
	u := uuid.NewSHA1(engineIDNamespace, []byte(seed))
	id := []byte{
		0x80 | byte(enterpriseNumber>>24),
		byte(enterpriseNumber >> 16),
		byte(enterpriseNumber >> 8 & 0xff),
		byte(enterpriseNumber & 0xff),
		0x05,
	}
	return append(id, u[:]...)
}
