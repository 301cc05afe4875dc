// Package provisioner creates the paid-for resource on the hosting panel.
package provisioner

import (
	"context"
	"errors"

	"provision-saga/internal/domain/provisioning"
)

// ErrProvisionFailed wraps every failure to create the resource. It is never retried
// automatically: the saga records it and hands it to an operator.
var ErrProvisionFailed = errors.New("provisioning failed")

// Provisioner is not idempotent; the coordinator guarantees at most one call per transaction.
type Provisioner interface {
	Provision(ctx context.Context, r provisioning.Reservation) (provisioning.Credentials, error)
}
