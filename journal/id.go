package journal

import (
	"time"

	"github.com/rustyeddy/autotrader/pkg/id"
)

func newID(at time.Time) string {
	if at.IsZero() {
		return id.New()
	}
	return id.NewAt(at)
}
