package order

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// IDGenerator issues order ids of the form ORD-<unix seconds>-<6 hex>. The
// seconds component never goes backwards, even if the wall clock does.
type IDGenerator struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy io.Reader
	last    int64
}

func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now, entropy: rand.Reader}
}

func (g *IDGenerator) Next() (string, error) {
	var suffix [3]byte
	if _, err := io.ReadFull(g.entropy, suffix[:]); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}

	g.mu.Lock()
	sec := g.now().Unix()
	if sec < g.last {
		sec = g.last
	}
	g.last = sec
	g.mu.Unlock()

	return fmt.Sprintf("ORD-%d-%s", sec, strings.ToUpper(hex.EncodeToString(suffix[:]))), nil
}
