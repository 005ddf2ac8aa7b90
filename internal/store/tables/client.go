package tables

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

// table is the slice of the Table Storage client the adapter needs.
type table interface {
	Add(ctx context.Context, payload []byte) error
	Merge(ctx context.Context, payload []byte) error
	Remove(ctx context.Context, pk, rk string) error
	List(ctx context.Context, filter string) ([][]byte, error)
}

type azTable struct {
	client *aztables.Client
}

func newAzTable(connStr, tableName string) (*azTable, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &azTable{client: svc.NewClient(tableName)}, nil
}

// ensure creates the table, tolerating one that already exists.
func (t *azTable) ensure(ctx context.Context) error {
	_, err := t.client.CreateTable(ctx, nil)
	if err != nil && statusCode(err) == http.StatusConflict {
		return nil
	}
	return err
}

func (t *azTable) Add(ctx context.Context, payload []byte) error {
	_, err := t.client.AddEntity(ctx, payload, nil)
	return err
}

func (t *azTable) Merge(ctx context.Context, payload []byte) error {
	et := azcore.ETagAny
	_, err := t.client.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return err
}

func (t *azTable) Remove(ctx context.Context, pk, rk string) error {
	_, err := t.client.DeleteEntity(ctx, pk, rk, nil)
	if err != nil && statusCode(err) == http.StatusNotFound {
		return nil
	}
	return err
}

func (t *azTable) List(ctx context.Context, filter string) ([][]byte, error) {
	opts := &aztables.ListEntitiesOptions{}
	if filter != "" {
		opts.Filter = &filter
	}
	pager := t.client.NewListEntitiesPager(opts)
	var out [][]byte
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Entities...)
	}
	return out, nil
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}
