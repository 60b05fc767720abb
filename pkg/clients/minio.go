package clients

import (
	"context"

	"github.com/DRSN-tech/storefront/internal/cfg"
	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

func NewMinIOClient(cfg *cfg.MinIOCfg) (*minio.Client, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.MinioRootUser, cfg.MinioRootPassword, ""),
		Secure:       cfg.MinioUseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return client, nil
}

// EnsureReceiptBucket готовит бакет для чеков: создаёт его при необходимости
// и, если задан срок хранения, вешает правило истечения на префикс чеков.
func EnsureReceiptBucket(ctx context.Context, client *minio.Client, cfg *cfg.MinIOCfg) error {
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if !exists {
		err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region})
		// Соседний экземпляр мог успеть создать бакет
		if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	if cfg.ReceiptRetentionDays <= 0 {
		return nil
	}

	rules := lifecycle.NewConfiguration()
	rules.Rules = []lifecycle.Rule{{
		ID:         "expire-receipts",
		Status:     "Enabled",
		RuleFilter: lifecycle.Filter{Prefix: domain.ReceiptKeyPrefix},
		Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(cfg.ReceiptRetentionDays)},
	}}
	if err := client.SetBucketLifecycle(ctx, cfg.BucketName, rules); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}
