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
	"fmt"
	"regexp"
	"strings"
	"time"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	databasepb "cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	gtransport "google.golang.org/api/transport/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	adminAddr = "spanner.googleapis.com:443"

	createDatabaseMetadataType = "type.googleapis.com/google.spanner.admin.database.v1.CreateDatabaseMetadata"
)

// DatabaseAdminCallOptions contains the retry settings for each method of
// DatabaseAdminClient.
type DatabaseAdminCallOptions struct {
	CreateDatabase         []gax.CallOption
	GetDatabase            []gax.CallOption
	UpdateDatabaseDdl      []gax.CallOption
	DropDatabase           []gax.CallOption
	GetDatabaseDdl         []gax.CallOption
	ListDatabases          []gax.CallOption
	CreateBackup           []gax.CallOption
	GetBackup              []gax.CallOption
	UpdateBackup           []gax.CallOption
	DeleteBackup           []gax.CallOption
	ListBackups            []gax.CallOption
	RestoreDatabase        []gax.CallOption
	ListDatabaseOperations []gax.CallOption
	ListBackupOperations   []gax.CallOption
	GetOperation           []gax.CallOption
	CancelOperation        []gax.CallOption
}

func defaultClientOptions() []option.ClientOption {
	return []option.ClientOption{
		option.WithEndpoint(adminAddr),
		option.WithScopes(
			"https://www.googleapis.com/auth/cloud-platform",
			"https://www.googleapis.com/auth/spanner.admin",
		),
	}
}

func defaultCallOptions() *DatabaseAdminCallOptions {
	idempotent := []gax.CallOption{
		gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{
				codes.Unavailable,
				codes.DeadlineExceeded,
			}, gax.Backoff{
				Initial:    250 * time.Millisecond,
				Max:        32 * time.Second,
				Multiplier: 1.3,
			})
		}),
	}
	return &DatabaseAdminCallOptions{
		CreateDatabase:         []gax.CallOption{},
		GetDatabase:            idempotent,
		UpdateDatabaseDdl:      idempotent,
		DropDatabase:           idempotent,
		GetDatabaseDdl:         idempotent,
		ListDatabases:          idempotent,
		CreateBackup:           []gax.CallOption{},
		GetBackup:              idempotent,
		UpdateBackup:           idempotent,
		DeleteBackup:           idempotent,
		ListBackups:            idempotent,
		RestoreDatabase:        []gax.CallOption{},
		ListDatabaseOperations: idempotent,
		ListBackupOperations:   idempotent,
		GetOperation:           idempotent,
		CancelOperation:        []gax.CallOption{},
	}
}

// retryer decides whether a failed submission RPC may have reached the server
// and should be reconciled rather than surfaced. Replaced in tests.
var retryer gax.Retryer = gax.OnCodes([]codes.Code{
	codes.Unavailable,
	codes.DeadlineExceeded,
}, gax.Backoff{
	Initial:    20 * time.Millisecond,
	Max:        32 * time.Second,
	Multiplier: 1.3,
})

// DatabaseAdminClient is a client for the database admin API. It starts,
// tracks and cancels long-running administrative operations (create database,
// create backup, restore, schema updates) and lists databases, backups and
// operations.
//
// A client is safe for concurrent use. Operation handles returned by the
// client poll independently of each other over the client's connection.
type DatabaseAdminClient struct {
	conn     *grpc.ClientConn
	database databasepb.DatabaseAdminClient

	// LROClient is used to poll the long-running operations started by this
	// client. It is exported so that it can be replaced, e.g. by a client
	// that polls through a different connection.
	LROClient longrunningpb.OperationsClient

	// CallOptions holds the retry settings for each method.
	CallOptions *DatabaseAdminCallOptions

	xGoogHeaders []string
	pollBackoff  gax.Backoff
}

// NewDatabaseAdminClient creates a new database admin client.
//
// The client can be used to create, drop and list databases, update database
// schemas, and create, delete, restore from and list backups. Each of the
// mutating calls returns an operation handle that tracks the server-side
// long-running operation.
func NewDatabaseAdminClient(ctx context.Context, opts ...option.ClientOption) (*DatabaseAdminClient, error) {
	conn, err := gtransport.Dial(ctx, append(defaultClientOptions(), opts...)...)
	if err != nil {
		return nil, err
	}
	c := &DatabaseAdminClient{
		conn:        conn,
		database:    databasepb.NewDatabaseAdminClient(conn),
		LROClient:   longrunningpb.NewOperationsClient(conn),
		CallOptions: defaultCallOptions(),
		pollBackoff: gax.Backoff{
			Initial:    500 * time.Millisecond,
			Max:        10 * time.Second,
			Multiplier: 1.5,
		},
	}
	c.xGoogHeaders = []string{"x-goog-api-client", gax.XGoogHeader("gccl", internalVersion)}
	return c, nil
}

// Connection returns the client's connection to the API service.
func (c *DatabaseAdminClient) Connection() *grpc.ClientConn {
	return c.conn
}

// Close closes the connection to the API service. The user should invoke this
// when the client is no longer required.
func (c *DatabaseAdminClient) Close() error {
	return c.conn.Close()
}

func (c *DatabaseAdminClient) insertMetadata(ctx context.Context) context.Context {
	return gax.InsertMetadataIntoOutgoingContext(ctx, c.xGoogHeaders...)
}

func (c *DatabaseAdminClient) newOperation(proto *longrunningpb.Operation) *operation {
	return &operation{
		client:      c.LROClient,
		proto:       proto,
		pollOptions: c.CallOptions.GetOperation,
		waitBackoff: c.pollBackoff,
	}
}

func (c *DatabaseAdminClient) resumeOperation(name string) *operation {
	return c.newOperation(&longrunningpb.Operation{Name: name})
}

// CreateDatabase creates a new database and starts to prepare it for serving.
// The returned operation has a name of the format
// <database_name>/operations/<operation_id> and can be used to track
// preparation of the database. The metadata field type is
// CreateDatabaseMetadata; the response field type is Database, if successful.
func (c *DatabaseAdminClient) CreateDatabase(ctx context.Context, req *databasepb.CreateDatabaseRequest, opts ...gax.CallOption) (*CreateDatabaseOperation, error) {
	ctx = c.insertMetadata(ctx)
	opts = append(c.CallOptions.CreateDatabase[0:len(c.CallOptions.CreateDatabase):len(c.CallOptions.CreateDatabase)], opts...)
	var resp *longrunningpb.Operation
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		resp, err = c.database.CreateDatabase(ctx, req, settings.GRPC...)
		return err
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &CreateDatabaseOperation{lro: c.newOperation(resp)}, nil
}

// StartCreateDatabase starts the creation of the database identified by id,
// running the given extra DDL statements after the database itself has been
// created. It fails with InvalidArgument if the database ID does not conform
// to the naming rules; existence of the database or the instance is only
// checked by the operation itself.
func (c *DatabaseAdminClient) StartCreateDatabase(ctx context.Context, id DatabaseID, extraStatements []string, opts ...gax.CallOption) (*CreateDatabaseOperation, error) {
	if !validDBIDPattern.MatchString(id.Database) {
		return nil, status.Errorf(codes.InvalidArgument, "database ID %q should conform to pattern %q", id.Database, validDBIDPattern.String())
	}
	req := &databasepb.CreateDatabaseRequest{
		Parent:          id.InstanceName(),
		CreateStatement: "CREATE DATABASE `" + id.Database + "`",
		ExtraStatements: extraStatements,
	}
	return c.CreateDatabase(ctx, req, opts...)
}

// CreateDatabaseWithRetry creates a new database with a retry for Unavailable
// errors on the initial call. A CreateDatabase request is not idempotent as
// such: the transient failure may have hit after the server accepted the
// request. In that case a retry would fail with AlreadyExists. Instead the
// client checks for a create operation matching the request and picks up that
// operation if it exists, or resubmits the request if it does not.
func (c *DatabaseAdminClient) CreateDatabaseWithRetry(ctx context.Context, req *databasepb.CreateDatabaseRequest, opts ...gax.CallOption) (*CreateDatabaseOperation, error) {
	for {
		op, err := c.CreateDatabase(ctx, req, opts...)
		if err == nil {
			return op, nil
		}
		delay, shouldRetry := retryer.Retry(err)
		if !shouldRetry {
			return nil, err
		}
		if err := gax.Sleep(ctx, delay); err != nil {
			return nil, err
		}
		found, err := c.findCreateDatabaseOperation(ctx, req)
		if err != nil {
			return nil, err
		}
		if found == nil {
			// The server never received the request; resubmit.
			continue
		}
		if found.GetDone() {
			// The operation finished. Verify that it actually produced the
			// database before reporting success to the caller.
			dbName := fmt.Sprintf("%s/databases/%s", req.GetParent(), extractDBName(req.GetCreateStatement()))
			if _, err := c.GetDatabase(ctx, &databasepb.GetDatabaseRequest{Name: dbName}); err != nil {
				return nil, err
			}
		}
		return c.CreateDatabaseOperation(found.GetName()), nil
	}
}

// findCreateDatabaseOperation looks for a create operation for the database
// named in the request's CREATE DATABASE statement.
func (c *DatabaseAdminClient) findCreateDatabaseOperation(ctx context.Context, req *databasepb.CreateDatabaseRequest) (*longrunningpb.Operation, error) {
	dbName := extractDBName(req.GetCreateStatement())
	filter := fmt.Sprintf("(metadata.@type:%s) AND (name:%s/databases/%s/operations/)",
		createDatabaseMetadataType, req.GetParent(), dbName)
	it := c.ListDatabaseOperations(ctx, &databasepb.ListDatabaseOperationsRequest{
		Parent: req.GetParent(),
		Filter: filter,
	})
	lro, err := it.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lro, nil
}

var createDBStatementRegexp = regexp.MustCompile(`(?is)^\s*CREATE\s+DATABASE\s+(.+?)\s*$`)

// extractDBName returns the database name from a CREATE DATABASE statement,
// or the empty string if the statement is not a CREATE DATABASE statement.
func extractDBName(createStatement string) string {
	m := createDBStatementRegexp.FindStringSubmatch(createStatement)
	if m == nil {
		return ""
	}
	return strings.Trim(m[1], "`")
}

// GetDatabase gets the current state of a database.
func (c *DatabaseAdminClient) GetDatabase(ctx context.Context, req *databasepb.GetDatabaseRequest, opts ...gax.CallOption) (*databasepb.Database, error) {
	ctx = c.insertMetadata(ctx)
	opts = append(c.CallOptions.GetDatabase[0:len(c.CallOptions.GetDatabase):len(c.CallOptions.GetDatabase)], opts...)
	var resp *databasepb.Database
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		resp, err = c.database.GetDatabase(ctx, req, settings.GRPC...)
		return err
	}, opts...)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// UpdateDatabaseDdl updates the schema of a database by creating, altering or
// dropping tables, columns, indexes, etc. The returned operation has a name
// of the format <database_name>/operations/<operation_id> and can be used to
// track execution of the schema changes. The metadata field type is
// UpdateDatabaseDdlMetadata. The operation has no response.
//
// The request fails with InvalidArgument if the statement list is empty or
// contains a blank statement.
func (c *DatabaseAdminClient) UpdateDatabaseDdl(ctx context.Context, req *databasepb.UpdateDatabaseDdlRequest, opts ...gax.CallOption) (*UpdateDatabaseDdlOperation, error) {
	if len(req.GetStatements()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "update DDL requires at least one statement")
	}
	for _, stmt := range req.GetStatements() {
		if strings.TrimSpace(stmt) == "" {
			return nil, status.Error(codes.InvalidArgument, "update DDL statements must not be blank")
		}
	}
	ctx = c.insertMetadata(ctx)
	opts = append(c.CallOptions.UpdateDatabaseDdl[0:len(c.CallOptions.UpdateDatabaseDdl):len(c.CallOptions.UpdateDatabaseDdl)], opts...)
	var resp *longrunningpb.Operation
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		resp, err = c.database.UpdateDatabaseDdl(ctx, req, settings.GRPC...)
		return err
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &UpdateDatabaseDdlOperation{lro: c.newOperation(resp)}, nil
}

// DropDatabase drops (aka deletes) a database.
func (c *DatabaseAdminClient) DropDatabase(ctx context.Context, req *databasepb.DropDatabaseRequest, opts ...gax.CallOption) error {
	ctx = c.insertMetadata(ctx)
	opts = append(c.CallOptions.DropDatabase[0:len(c.CallOptions.DropDatabase):len(c.CallOptions.DropDatabase)], opts...)
	return gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		_, err := c.database.DropDatabase(ctx, req, settings.GRPC...)
		return err
	}, opts...)
}

// GetDatabaseDdl returns the schema of a database as a list of formatted DDL
// statements. The returned schema does not include pending schema updates;
// those can be tracked via the operation returned by UpdateDatabaseDdl.
func (c *DatabaseAdminClient) GetDatabaseDdl(ctx context.Context, req *databasepb.GetDatabaseDdlRequest, opts ...gax.CallOption) (*databasepb.GetDatabaseDdlResponse, error) {
	ctx = c.insertMetadata(ctx)
	opts = append(c.CallOptions.GetDatabaseDdl[0:len(c.CallOptions.GetDatabaseDdl):len(c.CallOptions.GetDatabaseDdl)], opts...)
	var resp *databasepb.GetDatabaseDdlResponse
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		resp, err = c.database.GetDatabaseDdl(ctx, req, settings.GRPC...)
		return err
	}, opts...)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateBackup starts creating a backup of a database. The returned operation
// will have a name of the format
// projects/<project>/instances/<instance>/backups/<backup>/operations/<operation_id>
// and can be used to track creation of the backup. The metadata field type is
// CreateBackupMetadata; the response field type is Backup, if successful.
// Cancelling the returned operation deletes the backup.
func (c *DatabaseAdminClient) CreateBackup(ctx context.Context, req *databasepb.CreateBackupRequest, opts ...gax.CallOption) (*CreateBackupOperation, error) {
	ctx = c.insertMetadata(ctx)
	opts = append(c.CallOptions.CreateBackup[0:len(c.CallOptions.CreateBackup):len(c.CallOptions.CreateBackup)], opts...)
	var resp *longrunningpb.Operation
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		resp, err = c.database.CreateBackup(ctx, req, settings.GRPC...)
		return err
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &CreateBackupOperation{lro: c.newOperation(resp)}, nil
}

// StartBackupOperation creates a backup of the form
// projects/<project>/instances/<instance>/backups/<backupID> of the given
// database, with the given expiry time. The expiry time is respected to
// microsecond granularity; the backup is automatically deleted by the server
// after it expires.
//
// The database must be a valid database resource path. The operation fails
// with NotFound if the database does not exist and AlreadyExists if a backup
// with the given ID already exists in the instance.
func (c *DatabaseAdminClient) StartBackupOperation(ctx context.Context, backupID string, database string, expireTime time.Time, opts ...gax.CallOption) (*CreateBackupOperation, error) {
	if err := validDatabaseName(database); err != nil {
		return nil, err
	}
	db, err := ParseDatabaseName(database)
	if err != nil {
		return nil, err
	}
	req := &databasepb.CreateBackupRequest{
		Parent:   db.InstanceName(),
		BackupId: backupID,
		Backup: &databasepb.Backup{
			Database:   database,
			ExpireTime: timestamppb.New(expireTime),
		},
	}
	return c.CreateBackup(ctx, req, opts...)
}

// GetBackup gets metadata on a pending or completed backup.
func (c *DatabaseAdminClient) GetBackup(ctx context.Context, req *databasepb.GetBackupRequest, opts ...gax.CallOption) (*databasepb.Backup, error) {
	ctx = c.insertMetadata(ctx)
	opts = append(c.CallOptions.GetBackup[0:len(c.CallOptions.GetBackup):len(c.CallOptions.GetBackup)], opts...)
	var resp *databasepb.Backup
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		resp, err = c.database.GetBackup(ctx, req, settings.GRPC...)
		return err
	}, opts...)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// UpdateBackup updates a pending or completed backup. Only the fields named
// in the update mask are changed; of the backup's fields only the expiry time
// is mutable.
func (c *DatabaseAdminClient) UpdateBackup(ctx context.Context, req *databasepb.UpdateBackupRequest, opts ...gax.CallOption) (*databasepb.Backup, error) {
	ctx = c.insertMetadata(ctx)
	opts = append(c.CallOptions.UpdateBackup[0:len(c.CallOptions.UpdateBackup):len(c.CallOptions.UpdateBackup)], opts...)
	var resp *databasepb.Backup
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		resp, err = c.database.UpdateBackup(ctx, req, settings.GRPC...)
		return err
	}, opts...)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// UpdateBackupExpireTime sets a new expiry time on the given backup and
// returns the updated backup.
func (c *DatabaseAdminClient) UpdateBackupExpireTime(ctx context.Context, backup BackupID, expireTime time.Time, opts ...gax.CallOption) (*databasepb.Backup, error) {
	req := &databasepb.UpdateBackupRequest{
		Backup: &databasepb.Backup{
			Name:       backup.Name(),
			ExpireTime: timestamppb.New(expireTime),
		},
		UpdateMask: &fieldmaskpb.FieldMask{Paths: []string{"expire_time"}},
	}
	return c.UpdateBackup(ctx, req, opts...)
}

// DeleteBackup deletes a pending or completed backup. Deleting a backup that
// does not exist fails with NotFound; in particular deleting the same backup
// twice fails on the second call.
func (c *DatabaseAdminClient) DeleteBackup(ctx context.Context, req *databasepb.DeleteBackupRequest, opts ...gax.CallOption) error {
	ctx = c.insertMetadata(ctx)
	opts = append(c.CallOptions.DeleteBackup[0:len(c.CallOptions.DeleteBackup):len(c.CallOptions.DeleteBackup)], opts...)
	return gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		_, err := c.database.DeleteBackup(ctx, req, settings.GRPC...)
		return err
	}, opts...)
}

// RestoreDatabase creates a new database by restoring from a completed
// backup. The returned operation has a name of the format
// projects/<project>/instances/<instance>/databases/<database>/operations/<operation_id>
// and can be used to track the restore. The metadata field type is
// RestoreDatabaseMetadata; the response field type is Database, if
// successful. Once the restore completes, the server starts a second
// operation to optimize the restored database; that operation is visible via
// ListDatabaseOperations and its name is recorded in the restore metadata.
func (c *DatabaseAdminClient) RestoreDatabase(ctx context.Context, req *databasepb.RestoreDatabaseRequest, opts ...gax.CallOption) (*RestoreDatabaseOperation, error) {
	ctx = c.insertMetadata(ctx)
	opts = append(c.CallOptions.RestoreDatabase[0:len(c.CallOptions.RestoreDatabase):len(c.CallOptions.RestoreDatabase)], opts...)
	var resp *longrunningpb.Operation
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		resp, err = c.database.RestoreDatabase(ctx, req, settings.GRPC...)
		return err
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &RestoreDatabaseOperation{lro: c.newOperation(resp)}, nil
}

// RestoreDatabaseFromBackup restores the given backup into a new database
// identified by target. The operation fails with NotFound if the backup does
// not exist and AlreadyExists if the target database already exists.
func (c *DatabaseAdminClient) RestoreDatabaseFromBackup(ctx context.Context, backup BackupID, target DatabaseID, opts ...gax.CallOption) (*RestoreDatabaseOperation, error) {
	req := &databasepb.RestoreDatabaseRequest{
		Parent:     target.InstanceName(),
		DatabaseId: target.Database,
		Source: &databasepb.RestoreDatabaseRequest_Backup{
			Backup: backup.Name(),
		},
	}
	return c.RestoreDatabase(ctx, req, opts...)
}

// CancelOperation requests best-effort cancellation of a running operation by
// name. A nil error means the request was delivered; the operation may still
// complete successfully. Use the operation handle to observe the terminal
// state.
func (c *DatabaseAdminClient) CancelOperation(ctx context.Context, name string, opts ...gax.CallOption) error {
	ctx = c.insertMetadata(ctx)
	opts = append(c.CallOptions.CancelOperation[0:len(c.CallOptions.CancelOperation):len(c.CallOptions.CancelOperation)], opts...)
	return gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		_, err := c.LROClient.CancelOperation(ctx, &longrunningpb.CancelOperationRequest{Name: name}, settings.GRPC...)
		return err
	}, opts...)
}
