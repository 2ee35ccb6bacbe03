package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxWorkerID ctxKey = iota
	ctxOrganizationID
	ctxRole
)

var ErrNoIdentity = errors.New("auth: identity not in context")

func WithIdentity(ctx context.Context, workerID, organizationID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxWorkerID, workerID)
	ctx = context.WithValue(ctx, ctxOrganizationID, organizationID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func WorkerID(ctx context.Context) (string, error) {
	return lookup(ctx, ctxWorkerID, "worker_id")
}

func OrganizationID(ctx context.Context) (string, error) {
	return lookup(ctx, ctxOrganizationID, "organization_id")
}

func Role(ctx context.Context) (string, error) {
	return lookup(ctx, ctxRole, "role")
}

func lookup(ctx context.Context, k ctxKey, name string) (string, error) {
	if s, ok := ctx.Value(k).(string); ok && s != "" {
		return s, nil
	}
	return "", errors.Join(ErrNoIdentity, errors.New(name+" missing"))
}
