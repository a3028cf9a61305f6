package cli

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/client/session"
	"github.com/dmitrijs2005/gatekeeper/internal/filex"
)

func openSessionStore(ctx context.Context, path string) (*session.Store, error) {
	if err := filex.EnsureParentDir(path); err != nil {
		return nil, err
	}
	return session.Open(ctx, path)
}
