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
	"time"

	databasepb "cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Database is a handle on a single database, bound to the client that created
// it. Its fields are a snapshot as of the last Reload (or the call that
// produced it); they are not refreshed automatically.
type Database struct {
	// ID identifies the database. It never changes.
	ID DatabaseID

	// State is the database's state as of the last refresh.
	State databasepb.Database_State

	c *DatabaseAdminClient
}

// Database returns a handle on the database identified by id. The returned
// handle carries no state; call Reload to fetch it, or use GetDatabaseSnapshot
// to fetch handle and state in one call.
func (c *DatabaseAdminClient) Database(id DatabaseID) *Database {
	return &Database{ID: id, c: c}
}

// GetDatabaseSnapshot fetches the database identified by id and returns a
// handle with a fresh state snapshot. It fails with NotFound if the database
// does not exist.
func (c *DatabaseAdminClient) GetDatabaseSnapshot(ctx context.Context, id DatabaseID, opts ...gax.CallOption) (*Database, error) {
	db := c.Database(id)
	if err := db.Reload(ctx, opts...); err != nil {
		return nil, err
	}
	return db, nil
}

// Reload fetches the database's current state from the server. It fails with
// NotFound if the database does not exist.
func (d *Database) Reload(ctx context.Context, opts ...gax.CallOption) error {
	resp, err := d.c.GetDatabase(ctx, &databasepb.GetDatabaseRequest{Name: d.ID.Name()}, opts...)
	if err != nil {
		return err
	}
	d.State = resp.GetState()
	return nil
}

// Drop deletes the database and all of its data.
func (d *Database) Drop(ctx context.Context, opts ...gax.CallOption) error {
	return d.c.DropDatabase(ctx, &databasepb.DropDatabaseRequest{Database: d.ID.Name()}, opts...)
}

// UpdateDdl starts a schema update on the database. operationID optionally
// names the resulting operation; pass "" to let the server assign one. The
// call fails with InvalidArgument if statements is empty or contains a blank
// statement.
func (d *Database) UpdateDdl(ctx context.Context, operationID string, statements []string, opts ...gax.CallOption) (*UpdateDatabaseDdlOperation, error) {
	req := &databasepb.UpdateDatabaseDdlRequest{
		Database:    d.ID.Name(),
		Statements:  statements,
		OperationId: operationID,
	}
	return d.c.UpdateDatabaseDdl(ctx, req, opts...)
}

// Backup starts a backup of this database under the given backup ID, expiring
// at expireTime.
func (d *Database) Backup(ctx context.Context, backupID string, expireTime time.Time, opts ...gax.CallOption) (*CreateBackupOperation, error) {
	return d.c.StartBackupOperation(ctx, backupID, d.ID.Name(), expireTime, opts...)
}

// ListDatabaseOperations lists the operations scoped to this database, i.e.
// operations whose names are nested under the database's name.
func (d *Database) ListDatabaseOperations(ctx context.Context, opts ...gax.CallOption) *OperationIterator {
	return d.c.ListDatabaseOperations(ctx, &databasepb.ListDatabaseOperationsRequest{
		Parent: d.ID.InstanceName(),
		Filter: "name:" + d.ID.Name() + "/operations/",
	}, opts...)
}

// Backup is a handle on a single backup, bound to the client that created it.
// Its fields are a snapshot as of the last Reload (or the call that produced
// it); they are not refreshed automatically.
type Backup struct {
	// ID identifies the backup. It never changes.
	ID BackupID

	// Database is the database the backup was created from. It is the zero
	// value until the backup has been reloaded or fetched.
	Database DatabaseID

	// State is the backup's state as of the last refresh.
	State databasepb.Backup_State

	// ExpireTime is the time at which the server deletes the backup.
	ExpireTime time.Time

	// CreateTime and SizeBytes are set by the server once the backup is
	// ready; they are zero before that.
	CreateTime time.Time
	SizeBytes  int64

	c *DatabaseAdminClient
}

// Backup returns a handle on the backup identified by id. The returned handle
// carries no state; call Reload to fetch it, or use GetBackupSnapshot to
// fetch handle and state in one call.
func (c *DatabaseAdminClient) Backup(id BackupID) *Backup {
	return &Backup{ID: id, c: c}
}

// GetBackupSnapshot fetches the backup identified by id and returns a handle
// with a fresh snapshot. It fails with NotFound if the backup does not exist.
func (c *DatabaseAdminClient) GetBackupSnapshot(ctx context.Context, id BackupID, opts ...gax.CallOption) (*Backup, error) {
	b := c.Backup(id)
	if err := b.Reload(ctx, opts...); err != nil {
		return nil, err
	}
	return b, nil
}

// Create starts creating this backup from the given source database, expiring
// at expireTime. The source database must be in the same instance as the
// backup.
func (b *Backup) Create(ctx context.Context, source DatabaseID, expireTime time.Time, opts ...gax.CallOption) (*CreateBackupOperation, error) {
	return b.c.StartBackupOperation(ctx, b.ID.Backup, source.Name(), expireTime, opts...)
}

// Reload fetches the backup's current state from the server. It fails with
// NotFound if the backup does not exist.
func (b *Backup) Reload(ctx context.Context, opts ...gax.CallOption) error {
	resp, err := b.c.GetBackup(ctx, &databasepb.GetBackupRequest{Name: b.ID.Name()}, opts...)
	if err != nil {
		return err
	}
	b.State = resp.GetState()
	b.SizeBytes = resp.GetSizeBytes()
	if resp.GetDatabase() != "" {
		db, err := ParseDatabaseName(resp.GetDatabase())
		if err != nil {
			return err
		}
		b.Database = db
	}
	if resp.GetExpireTime() != nil {
		b.ExpireTime = resp.GetExpireTime().AsTime()
	}
	if resp.GetCreateTime() != nil {
		b.CreateTime = resp.GetCreateTime().AsTime()
	}
	return nil
}

// Exists reports whether the backup exists on the server.
func (b *Backup) Exists(ctx context.Context, opts ...gax.CallOption) (bool, error) {
	_, err := b.c.GetBackup(ctx, &databasepb.GetBackupRequest{Name: b.ID.Name()}, opts...)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete deletes the backup. It fails with NotFound if the backup does not
// exist; deleting the same backup twice fails on the second call.
func (b *Backup) Delete(ctx context.Context, opts ...gax.CallOption) error {
	return b.c.DeleteBackup(ctx, &databasepb.DeleteBackupRequest{Name: b.ID.Name()}, opts...)
}

// UpdateExpireTime sets a new expiry time on the backup and refreshes the
// handle's snapshot from the server's response.
func (b *Backup) UpdateExpireTime(ctx context.Context, expireTime time.Time, opts ...gax.CallOption) error {
	resp, err := b.c.UpdateBackupExpireTime(ctx, b.ID, expireTime, opts...)
	if err != nil {
		return err
	}
	b.ExpireTime = resp.GetExpireTime().AsTime()
	return nil
}

// Restore starts restoring the backup into the database identified by target,
// which must not yet exist. The backup may be restored into a different
// instance than its own.
func (b *Backup) Restore(ctx context.Context, target DatabaseID, opts ...gax.CallOption) (*RestoreDatabaseOperation, error) {
	return b.c.RestoreDatabaseFromBackup(ctx, b.ID, target, opts...)
}

// ListBackupOperations lists the operations scoped to this backup, i.e.
// operations whose names are nested under the backup's name.
func (b *Backup) ListBackupOperations(ctx context.Context, opts ...gax.CallOption) *OperationIterator {
	return b.c.ListBackupOperations(ctx, &databasepb.ListBackupOperationsRequest{
		Parent: b.ID.InstanceName(),
		Filter: "name:" + b.ID.Name() + "/operations/",
	}, opts...)
}
