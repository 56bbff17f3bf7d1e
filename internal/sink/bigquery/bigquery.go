// Package bigquery implements sink.Inserter on top of the BigQuery v2 REST
// API's tabledata.insertAll call.
package bigquery

import (
	"context"

	"github.com/cockroachdb/errors"
	bq "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"

	"github.com/hejijunhao/tablelog/internal/model"
	"github.com/hejijunhao/tablelog/internal/sink"
)

func init() {
	sink.Register("bigquery", func(ctx context.Context, cfg sink.Config) (sink.Inserter, error) {
		return New(ctx, clientOptions(cfg)...)
	})
}

// Inserter streams rows through tabledata.insertAll.
type Inserter struct {
	svc *bq.Service
}

// New creates an Inserter. Without options the service uses Application
// Default Credentials against the public endpoint.
func New(ctx context.Context, opts ...option.ClientOption) (*Inserter, error) {
	svc, err := bq.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "bigquery: new service")
	}
	return &Inserter{svc: svc}, nil
}

// InsertAll performs exactly one tabledata.insertAll call. Transport and API
// errors (including *googleapi.Error for non-2xx replies) are returned as-is.
func (i *Inserter) InsertAll(ctx context.Context, projectID, datasetID, tableID string, req *model.InsertRequest) (*model.InsertResponse, error) {
	resp, err := i.svc.Tabledata.InsertAll(projectID, datasetID, tableID, toAPIRequest(req)).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return fromAPIResponse(resp), nil
}

// clientOptions maps sink settings to API client options. An endpoint
// without a credentials file is treated as a local emulator and skips auth.
func clientOptions(cfg sink.Config) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		if cfg.CredentialsFile == "" {
			opts = append(opts, option.WithoutAuthentication())
		}
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return opts
}

func toAPIRequest(req *model.InsertRequest) *bq.TableDataInsertAllRequest {
	out := &bq.TableDataInsertAllRequest{
		Kind: req.Kind,
		Rows: make([]*bq.TableDataInsertAllRequestRows, len(req.Rows)),
	}
	for i, r := range req.Rows {
		row := make(map[string]bq.JsonValue, len(r.JSON))
		for k, v := range r.JSON {
			row[k] = v
		}
		out.Rows[i] = &bq.TableDataInsertAllRequestRows{InsertId: r.InsertID, Json: row}
	}
	return out
}

func fromAPIResponse(resp *bq.TableDataInsertAllResponse) *model.InsertResponse {
	out := &model.InsertResponse{Kind: resp.Kind}
	for _, ie := range resp.InsertErrors {
		if ie == nil {
			continue
		}
		e := model.InsertError{Index: ie.Index}
		for _, ep := range ie.Errors {
			if ep == nil {
				continue
			}
			e.Errors = append(e.Errors, model.ErrorDetail{
				Reason:    ep.Reason,
				Location:  ep.Location,
				Message:   ep.Message,
				DebugInfo: ep.DebugInfo,
			})
		}
		out.InsertErrors = append(out.InsertErrors, e)
	}
	return out
}
