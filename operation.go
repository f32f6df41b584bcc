/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package spanneradmin

import (
	"context"
	"errors"
	"sync"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	databasepb "cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// ErrNoMetadata is returned by Metadata if the operation contains no metadata.
var ErrNoMetadata = errors.New("operation contains no metadata")

// operation tracks a single long-running operation by name. It is created
// together with the RPC that started the operation and is advanced only by
// polling the operations service. Once the operation reports done, the state
// is final; subsequent polls do not issue RPCs.
//
// The mutex serializes polls so that at most one GetOperation call is in
// flight per handle. Distinct handles are fully independent.
type operation struct {
	mu     sync.Mutex
	client longrunningpb.OperationsClient
	proto  *longrunningpb.Operation

	// Retry options applied to each GetOperation call.
	pollOptions []gax.CallOption
	// Backoff between polls in wait.
	waitBackoff gax.Backoff
}

// Name returns the server-assigned name of the operation. The name never
// changes and is the sole key for re-polling, also from other processes.
func (op *operation) Name() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.proto.GetName()
}

// Done reports whether the operation has reached a terminal state. It does
// not contact the server.
func (op *operation) Done() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.proto.GetDone()
}

// metadata decodes the operation's metadata envelope into meta. It returns
// ErrNoMetadata if the server sent none, and an unmarshaling error if meta
// is of a different type than the envelope declares.
func (op *operation) metadata(meta proto.Message) error {
	op.mu.Lock()
	defer op.mu.Unlock()
	any := op.proto.GetMetadata()
	if any == nil {
		return ErrNoMetadata
	}
	return any.UnmarshalTo(meta)
}

// poll fetches the current state of the operation unless it is already
// terminal. Transient errors on the GetOperation call itself are retried
// according to pollOptions; a NotFound on the operation name is terminal and
// returned as is. If the operation is done with an error payload, the
// server's original error is returned. If it is done with a response and
// resp is non-nil, the response is decoded into resp.
func (op *operation) poll(ctx context.Context, resp proto.Message, opts ...gax.CallOption) error {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.proto.GetDone() {
		req := &longrunningpb.GetOperationRequest{Name: op.proto.GetName()}
		var latest *longrunningpb.Operation
		opts = append(op.pollOptions[:len(op.pollOptions):len(op.pollOptions)], opts...)
		err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
			var err error
			latest, err = op.client.GetOperation(ctx, req, settings.GRPC...)
			return err
		}, opts...)
		if err != nil {
			return err
		}
		op.proto = latest
	}
	if !op.proto.GetDone() {
		return nil
	}
	switch r := op.proto.GetResult().(type) {
	case *longrunningpb.Operation_Error:
		return status.ErrorProto(r.Error)
	case *longrunningpb.Operation_Response:
		if resp == nil {
			return nil
		}
		return r.Response.UnmarshalTo(resp)
	default:
		return nil
	}
}

// wait polls the operation until it is terminal, pausing between polls per
// the configured backoff. The caller bounds the total wait with the context;
// an expired context ends only the local wait, the server-side operation
// keeps running and the handle can be re-awaited.
func (op *operation) wait(ctx context.Context, resp proto.Message, opts ...gax.CallOption) error {
	bo := op.waitBackoff
	for {
		if err := op.poll(ctx, resp, opts...); err != nil {
			return err
		}
		if op.Done() {
			return nil
		}
		if err := gax.Sleep(ctx, bo.Pause()); err != nil {
			return err
		}
	}
}

// cancel asks the server to cancel the operation. It is best effort: success
// means the request was delivered, not that the operation will reach a
// cancelled state. An operation that completes before the server processes
// the request stays completed.
func (op *operation) cancel(ctx context.Context, opts ...gax.CallOption) error {
	req := &longrunningpb.CancelOperationRequest{Name: op.Name()}
	opts = append(op.pollOptions[:len(op.pollOptions):len(op.pollOptions)], opts...)
	return gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		_, err := op.client.CancelOperation(ctx, req, settings.GRPC...)
		return err
	}, opts...)
}

// CreateDatabaseOperation tracks a long-running operation from CreateDatabase.
type CreateDatabaseOperation struct {
	lro *operation
}

// CreateDatabaseOperation returns a new CreateDatabaseOperation from a given name.
// The name must be that of a previously created CreateDatabaseOperation, possibly
// from a different process.
func (c *DatabaseAdminClient) CreateDatabaseOperation(name string) *CreateDatabaseOperation {
	return &CreateDatabaseOperation{lro: c.resumeOperation(name)}
}

// Wait blocks until the operation is completed, returning the resulting
// database. The metadata field type is CreateDatabaseMetadata.
func (op *CreateDatabaseOperation) Wait(ctx context.Context, opts ...gax.CallOption) (*databasepb.Database, error) {
	var resp databasepb.Database
	if err := op.lro.wait(ctx, &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Poll fetches the latest state of the operation. If the operation is not
// completed yet, (nil, nil) is returned.
func (op *CreateDatabaseOperation) Poll(ctx context.Context, opts ...gax.CallOption) (*databasepb.Database, error) {
	var resp databasepb.Database
	if err := op.lro.poll(ctx, &resp, opts...); err != nil {
		return nil, err
	}
	if !op.lro.Done() {
		return nil, nil
	}
	return &resp, nil
}

// Metadata returns metadata associated with the operation. It may be partially
// populated while the operation is running. Metadata does not contact the
// server; call Poll first for fresh values.
func (op *CreateDatabaseOperation) Metadata() (*databasepb.CreateDatabaseMetadata, error) {
	var meta databasepb.CreateDatabaseMetadata
	if err := op.lro.metadata(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Done reports whether the operation has completed.
func (op *CreateDatabaseOperation) Done() bool { return op.lro.Done() }

// Name returns the name of the operation.
func (op *CreateDatabaseOperation) Name() string { return op.lro.Name() }

// Cancel requests best-effort cancellation of the operation.
func (op *CreateDatabaseOperation) Cancel(ctx context.Context, opts ...gax.CallOption) error {
	return op.lro.cancel(ctx, opts...)
}

// CreateBackupOperation tracks a long-running operation from CreateBackup.
type CreateBackupOperation struct {
	lro *operation
}

// CreateBackupOperation returns a new CreateBackupOperation from a given name.
// The name must be that of a previously created CreateBackupOperation, possibly
// from a different process.
func (c *DatabaseAdminClient) CreateBackupOperation(name string) *CreateBackupOperation {
	return &CreateBackupOperation{lro: c.resumeOperation(name)}
}

// Wait blocks until the operation is completed, returning the resulting
// backup. The metadata field type is CreateBackupMetadata.
func (op *CreateBackupOperation) Wait(ctx context.Context, opts ...gax.CallOption) (*databasepb.Backup, error) {
	var resp databasepb.Backup
	if err := op.lro.wait(ctx, &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Poll fetches the latest state of the operation. If the operation is not
// completed yet, (nil, nil) is returned.
func (op *CreateBackupOperation) Poll(ctx context.Context, opts ...gax.CallOption) (*databasepb.Backup, error) {
	var resp databasepb.Backup
	if err := op.lro.poll(ctx, &resp, opts...); err != nil {
		return nil, err
	}
	if !op.lro.Done() {
		return nil, nil
	}
	return &resp, nil
}

// Metadata returns metadata associated with the operation, including the
// backup's progress.
func (op *CreateBackupOperation) Metadata() (*databasepb.CreateBackupMetadata, error) {
	var meta databasepb.CreateBackupMetadata
	if err := op.lro.metadata(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Done reports whether the operation has completed.
func (op *CreateBackupOperation) Done() bool { return op.lro.Done() }

// Name returns the name of the operation.
func (op *CreateBackupOperation) Name() string { return op.lro.Name() }

// Cancel requests best-effort cancellation of the operation. The backup may
// still complete; both outcomes are valid after a cancellation request.
func (op *CreateBackupOperation) Cancel(ctx context.Context, opts ...gax.CallOption) error {
	return op.lro.cancel(ctx, opts...)
}

// RestoreDatabaseOperation tracks a long-running operation from RestoreDatabase.
type RestoreDatabaseOperation struct {
	lro *operation
}

// RestoreDatabaseOperation returns a new RestoreDatabaseOperation from a given name.
// The name must be that of a previously created RestoreDatabaseOperation, possibly
// from a different process.
func (c *DatabaseAdminClient) RestoreDatabaseOperation(name string) *RestoreDatabaseOperation {
	return &RestoreDatabaseOperation{lro: c.resumeOperation(name)}
}

// Wait blocks until the operation is completed, returning the restored
// database. The metadata field type is RestoreDatabaseMetadata; once the
// restore has finished the server starts a separate optimize operation,
// whose name is recorded in the metadata and which is visible through
// ListDatabaseOperations.
func (op *RestoreDatabaseOperation) Wait(ctx context.Context, opts ...gax.CallOption) (*databasepb.Database, error) {
	var resp databasepb.Database
	if err := op.lro.wait(ctx, &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Poll fetches the latest state of the operation. If the operation is not
// completed yet, (nil, nil) is returned.
func (op *RestoreDatabaseOperation) Poll(ctx context.Context, opts ...gax.CallOption) (*databasepb.Database, error) {
	var resp databasepb.Database
	if err := op.lro.poll(ctx, &resp, opts...); err != nil {
		return nil, err
	}
	if !op.lro.Done() {
		return nil, nil
	}
	return &resp, nil
}

// Metadata returns metadata associated with the operation.
func (op *RestoreDatabaseOperation) Metadata() (*databasepb.RestoreDatabaseMetadata, error) {
	var meta databasepb.RestoreDatabaseMetadata
	if err := op.lro.metadata(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Done reports whether the operation has completed.
func (op *RestoreDatabaseOperation) Done() bool { return op.lro.Done() }

// Name returns the name of the operation.
func (op *RestoreDatabaseOperation) Name() string { return op.lro.Name() }

// Cancel requests best-effort cancellation of the operation.
func (op *RestoreDatabaseOperation) Cancel(ctx context.Context, opts ...gax.CallOption) error {
	return op.lro.cancel(ctx, opts...)
}

// UpdateDatabaseDdlOperation tracks a long-running operation from UpdateDatabaseDdl.
type UpdateDatabaseDdlOperation struct {
	lro *operation
}

// UpdateDatabaseDdlOperation returns a new UpdateDatabaseDdlOperation from a given name.
// The name must be that of a previously created UpdateDatabaseDdlOperation, possibly
// from a different process.
func (c *DatabaseAdminClient) UpdateDatabaseDdlOperation(name string) *UpdateDatabaseDdlOperation {
	return &UpdateDatabaseDdlOperation{lro: c.resumeOperation(name)}
}

// Wait blocks until the operation is completed. The operation has no
// response; the metadata field type is UpdateDatabaseDdlMetadata.
func (op *UpdateDatabaseDdlOperation) Wait(ctx context.Context, opts ...gax.CallOption) error {
	return op.lro.wait(ctx, nil, opts...)
}

// Poll fetches the latest state of the operation. An error is returned if
// the operation completed with an error.
func (op *UpdateDatabaseDdlOperation) Poll(ctx context.Context, opts ...gax.CallOption) error {
	return op.lro.poll(ctx, nil, opts...)
}

// Metadata returns metadata associated with the operation, including the
// per-statement progress of the schema change.
func (op *UpdateDatabaseDdlOperation) Metadata() (*databasepb.UpdateDatabaseDdlMetadata, error) {
	var meta databasepb.UpdateDatabaseDdlMetadata
	if err := op.lro.metadata(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Done reports whether the operation has completed.
func (op *UpdateDatabaseDdlOperation) Done() bool { return op.lro.Done() }

// Name returns the name of the operation.
func (op *UpdateDatabaseDdlOperation) Name() string { return op.lro.Name() }

// Cancel requests best-effort cancellation of the operation.
func (op *UpdateDatabaseDdlOperation) Cancel(ctx context.Context, opts ...gax.CallOption) error {
	return op.lro.cancel(ctx, opts...)
}
