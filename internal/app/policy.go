package app

import "github.com/gomarketplace/cartd/internal/policy"

// Policy is the configuration port used by the application.
// Implemented by internal/policy.Policy.
type Policy interface {
	Namespace() string
	PersistMode() policy.PersistMode
	ZeroPolicy() policy.ZeroPolicy
	SignalFilePath() string
}
