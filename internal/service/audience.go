// internal/service/audience.go
package service

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/unclebandit/mailing-service/internal/repository"
)

// AudienceResolver turns a mailing's filter into its recipients.
type AudienceResolver struct{}

// Resolve returns the IDs of clients whose operator code and tag both equal
// the filter. An empty result is a valid zero-recipient mailing.
func (AudienceResolver) Resolve(ctx context.Context, clients repository.ClientRepositoryInterface, operatorCode, tag string) ([]int64, error) {
	ids, err := clients.ListIDsByOperatorAndTag(ctx, operatorCode, tag)
	if err != nil {
		return nil, errors.Wrap(err, "resolve audience")
	}
	return ids, nil
}
