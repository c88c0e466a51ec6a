package core

import (
	"fmt"
	"strings"

	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// StatusPolicy decides when the engine advances a message status on its own.
// Explicit receipts through Engine.Acknowledge work under every policy.
type StatusPolicy interface {
	// MarkDelivered reports whether msg should move to delivered after its
	// creation event reached the given number of receiver sessions.
	MarkDelivered(msg *store.Message, reached int) bool
}

// ManualStatusPolicy never advances statuses automatically.
type ManualStatusPolicy struct{}

// MarkDelivered implements StatusPolicy.
func (ManualStatusPolicy) MarkDelivered(*store.Message, int) bool { return false }

// AutoDeliverPolicy marks a message delivered once it was pushed to at least
// one live session of the receiver.
type AutoDeliverPolicy struct{}

// MarkDelivered implements StatusPolicy.
func (AutoDeliverPolicy) MarkDelivered(msg *store.Message, reached int) bool {
	return reached > 0 && msg.Status == store.MessageStatusSent
}

// Status policy names accepted in configuration.
const (
	StatusPolicyManual      = "manual"
	StatusPolicyAutoDeliver = "auto_deliver"
)

// ParseStatusPolicy resolves a configured policy name.
func ParseStatusPolicy(name string) (StatusPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StatusPolicyManual:
		return ManualStatusPolicy{}, nil
	case StatusPolicyAutoDeliver:
		return AutoDeliverPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown status policy %q", name)
	}
}
