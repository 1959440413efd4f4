package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newReference generates a fresh correlation token: a fixed prefix, the
// current time in milliseconds, and a short random suffix so rapid-fire
// creations within the same clock tick cannot collide.
func (s *Service) newReference() string {
	prefix := s.cfg.ReferencePrefix
	if prefix == "" {
		prefix = "MEUEV"
	}
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), suffix)
}
