package minio

import (
	"bytes"
	"context"

	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// ReceiptRepo хранит архивные чеки заказов в MinIO.
type ReceiptRepo struct {
	mc *minio.Client
}

func NewReceiptRepo(mc *minio.Client) *ReceiptRepo {
	return &ReceiptRepo{
		mc: mc,
	}
}

// Upload загружает чек и возвращает ключ объекта. Повторная загрузка перезаписывает объект.
func (r *ReceiptRepo) Upload(ctx context.Context, receipt *domain.Receipt) (string, error) {
	reader := bytes.NewReader(receipt.Body)

	info, err := r.mc.PutObject(ctx, receipt.Bucket, receipt.ObjectKey, reader, int64(len(receipt.Body)), minio.PutObjectOptions{
		ContentType: receipt.ContentType,
	})
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return info.Key, nil
}

// Delete удаляет объект по ключу. Отсутствие объекта ошибкой не считается.
func (r *ReceiptRepo) Delete(ctx context.Context, bucket, key string) error {
	if err := r.mc.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}
