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
	"testing"
	"time"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	databasepb "cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
	"github.com/google/go-cmp/cmp"
	statuspb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

var (
	testDatabaseID = DatabaseID{Project: "my-project", Instance: "my-instance", Database: "test-db"}
	testBackupID   = BackupID{Project: "my-project", Instance: "my-instance", Backup: "test-bck"}
)

func mustAny(t *testing.T, m proto.Message) *anypb.Any {
	t.Helper()
	any, err := anypb.New(m)
	if err != nil {
		t.Fatal(err)
	}
	return any
}

func pendingOp(t *testing.T, name string, meta proto.Message) *longrunningpb.Operation {
	t.Helper()
	return &longrunningpb.Operation{
		Name:     name,
		Done:     false,
		Metadata: mustAny(t, meta),
	}
}

func doneOp(t *testing.T, name string, meta, resp proto.Message) *longrunningpb.Operation {
	t.Helper()
	return &longrunningpb.Operation{
		Name:     name,
		Done:     true,
		Metadata: mustAny(t, meta),
		Result:   &longrunningpb.Operation_Response{Response: mustAny(t, resp)},
	}
}

func failedOp(t *testing.T, name string, meta proto.Message, code codes.Code, msg string) *longrunningpb.Operation {
	t.Helper()
	return &longrunningpb.Operation{
		Name:     name,
		Done:     true,
		Metadata: mustAny(t, meta),
		Result: &longrunningpb.Operation_Error{
			Error: &statuspb.Status{Code: int32(code), Message: msg},
		},
	}
}

func TestExtractDBName(t *testing.T) {
	for _, tc := range []struct {
		statement string
		want      string
	}{
		{"CREATE DATABASE mydb", "mydb"},
		{"CREATE DATABASE `mydb`", "mydb"},
		{"  CREATE  DATABASE   mydb  ", "mydb"},
		{"create database mydb", "mydb"},
		{"CREATE\nDATABASE\nmydb", "mydb"},
		{"CREATE DATABASE `my-db_1`", "my-db_1"},
		{"CREATE DATABASE", ""},
		{"ALTER DATABASE mydb", ""},
		{"CREATE TABLE mydb", ""},
		{"", ""},
	} {
		if got := extractDBName(tc.statement); got != tc.want {
			t.Errorf("extractDBName(%q) = %q, want %q", tc.statement, got, tc.want)
		}
	}
}

func TestStartCreateDatabase(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	opName := testDatabaseID.Name() + "/operations/1"
	mockDatabaseAdmin.resps = []proto.Message{
		pendingOp(t, opName, &databasepb.CreateDatabaseMetadata{Database: testDatabaseID.Name()}),
	}

	op, err := c.StartCreateDatabase(ctx, testDatabaseID, []string{"CREATE TABLE FOO", "CREATE TABLE BAR"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := op.Name(), opName; got != want {
		t.Errorf("op.Name() = %q, want %q", got, want)
	}
	if op.Done() {
		t.Error("op.Done() = true before any poll")
	}

	want := &databasepb.CreateDatabaseRequest{
		Parent:          testDatabaseID.InstanceName(),
		CreateStatement: "CREATE DATABASE `test-db`",
		ExtraStatements: []string{"CREATE TABLE FOO", "CREATE TABLE BAR"},
	}
	if got := mockDatabaseAdmin.reqs[0]; !proto.Equal(got, want) {
		t.Errorf("request = %v, want %v", got, want)
	}
}

func TestStartCreateDatabaseInvalidID(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	for _, db := range []string{"", "7db", "Invalid", "db_", "-db"} {
		id := testDatabaseID
		id.Database = db
		_, err := c.StartCreateDatabase(ctx, id, nil)
		if status.Code(err) != codes.InvalidArgument {
			t.Errorf("StartCreateDatabase(%q) = %v, want InvalidArgument", db, err)
		}
	}
	if len(mockDatabaseAdmin.reqs) != 0 {
		t.Errorf("server received %d requests, want 0", len(mockDatabaseAdmin.reqs))
	}
}

func TestCreateDatabaseWithRetryOperationInProgress(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	withFastRetryer(t)

	opName := testDatabaseID.Name() + "/operations/1"
	meta := &databasepb.CreateDatabaseMetadata{Database: testDatabaseID.Name()}
	mockDatabaseAdmin.errs = []error{status.Error(codes.Unavailable, "try again")}
	mockDatabaseAdmin.resps = []proto.Message{
		&databasepb.ListDatabaseOperationsResponse{
			Operations: []*longrunningpb.Operation{pendingOp(t, opName, meta)},
		},
	}

	req := &databasepb.CreateDatabaseRequest{
		Parent:          testDatabaseID.InstanceName(),
		CreateStatement: "CREATE DATABASE `test-db`",
	}
	op, err := c.CreateDatabaseWithRetry(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := op.Name(), opName; got != want {
		t.Errorf("op.Name() = %q, want %q", got, want)
	}

	if got, want := len(mockDatabaseAdmin.reqs), 2; got != want {
		t.Fatalf("server received %d requests, want %d", got, want)
	}
	listReq := mockDatabaseAdmin.reqs[1].(*databasepb.ListDatabaseOperationsRequest)
	wantFilter := "(metadata.@type:type.googleapis.com/google.spanner.admin.database.v1.CreateDatabaseMetadata)" +
		" AND (name:projects/my-project/instances/my-instance/databases/test-db/operations/)"
	if got := listReq.GetFilter(); got != wantFilter {
		t.Errorf("filter = %q, want %q", got, wantFilter)
	}

	mockOperations.resps = []proto.Message{
		pendingOp(t, opName, meta),
		doneOp(t, opName, meta, &databasepb.Database{Name: testDatabaseID.Name(), State: databasepb.Database_READY}),
	}
	db, err := op.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := db.GetName(), testDatabaseID.Name(); got != want {
		t.Errorf("database = %q, want %q", got, want)
	}
	if got, want := len(mockOperations.reqs), 2; got != want {
		t.Errorf("operations service received %d requests, want %d", got, want)
	}
}

func TestCreateDatabaseWithRetryOperationFinished(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	withFastRetryer(t)

	opName := testDatabaseID.Name() + "/operations/1"
	meta := &databasepb.CreateDatabaseMetadata{Database: testDatabaseID.Name()}
	db := &databasepb.Database{Name: testDatabaseID.Name(), State: databasepb.Database_READY}
	mockDatabaseAdmin.errs = []error{status.Error(codes.Unavailable, "try again")}
	mockDatabaseAdmin.resps = []proto.Message{
		&databasepb.ListDatabaseOperationsResponse{
			Operations: []*longrunningpb.Operation{doneOp(t, opName, meta, db)},
		},
		db,
	}
	mockOperations.resps = []proto.Message{doneOp(t, opName, meta, db)}

	req := &databasepb.CreateDatabaseRequest{
		Parent:          testDatabaseID.InstanceName(),
		CreateStatement: "CREATE DATABASE `test-db`",
	}
	op, err := c.CreateDatabaseWithRetry(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	got, err := op.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !proto.Equal(got, db) {
		t.Errorf("database = %v, want %v", got, db)
	}

	// Create, list, and the existence check on the finished operation.
	if got, want := len(mockDatabaseAdmin.reqs), 3; got != want {
		t.Fatalf("server received %d requests, want %d", got, want)
	}
	getReq := mockDatabaseAdmin.reqs[2].(*databasepb.GetDatabaseRequest)
	if got, want := getReq.GetName(), testDatabaseID.Name(); got != want {
		t.Errorf("GetDatabase name = %q, want %q", got, want)
	}
}

func TestCreateDatabaseWithRetryServerDidNotReceiveRequest(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	withFastRetryer(t)

	opName := testDatabaseID.Name() + "/operations/2"
	meta := &databasepb.CreateDatabaseMetadata{Database: testDatabaseID.Name()}
	mockDatabaseAdmin.errs = []error{status.Error(codes.Unavailable, "try again")}
	mockDatabaseAdmin.resps = []proto.Message{
		&databasepb.ListDatabaseOperationsResponse{},
		pendingOp(t, opName, meta),
	}

	req := &databasepb.CreateDatabaseRequest{
		Parent:          testDatabaseID.InstanceName(),
		CreateStatement: "CREATE DATABASE `test-db`",
	}
	op, err := c.CreateDatabaseWithRetry(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := op.Name(), opName; got != want {
		t.Errorf("op.Name() = %q, want %q", got, want)
	}

	// The empty listing means the first request never reached the server,
	// so the request is submitted again.
	if got, want := len(mockDatabaseAdmin.reqs), 3; got != want {
		t.Fatalf("server received %d requests, want %d", got, want)
	}
	if _, ok := mockDatabaseAdmin.reqs[2].(*databasepb.CreateDatabaseRequest); !ok {
		t.Errorf("third request = %T, want CreateDatabaseRequest", mockDatabaseAdmin.reqs[2])
	}
}

func TestCreateDatabaseWithRetryNonRetryableError(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	withFastRetryer(t)

	mockDatabaseAdmin.errs = []error{status.Error(codes.InvalidArgument, "bad statement")}
	_, err := c.CreateDatabaseWithRetry(ctx, &databasepb.CreateDatabaseRequest{
		Parent:          testDatabaseID.InstanceName(),
		CreateStatement: "CREATE DATABASE `test-db`",
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
	if got, want := len(mockDatabaseAdmin.reqs), 1; got != want {
		t.Errorf("server received %d requests, want %d", got, want)
	}
}

func TestUpdateDatabaseDdlInvalidStatements(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	for _, statements := range [][]string{
		nil,
		{},
		{"CREATE TABLE FOO", "  "},
		{""},
	} {
		_, err := c.UpdateDatabaseDdl(ctx, &databasepb.UpdateDatabaseDdlRequest{
			Database:   testDatabaseID.Name(),
			Statements: statements,
		})
		if status.Code(err) != codes.InvalidArgument {
			t.Errorf("UpdateDatabaseDdl(%q) = %v, want InvalidArgument", statements, err)
		}
	}
	if len(mockDatabaseAdmin.reqs) != 0 {
		t.Errorf("server received %d requests, want 0", len(mockDatabaseAdmin.reqs))
	}
}

func TestStartBackupOperation(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	opName := testBackupID.Name() + "/operations/1"
	expireTime := time.Now().Add(7 * 24 * time.Hour).Truncate(time.Microsecond)
	mockDatabaseAdmin.resps = []proto.Message{
		pendingOp(t, opName, &databasepb.CreateBackupMetadata{
			Name:     testBackupID.Name(),
			Database: testDatabaseID.Name(),
		}),
	}

	op, err := c.StartBackupOperation(ctx, testBackupID.Backup, testDatabaseID.Name(), expireTime)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := op.Name(), opName; got != want {
		t.Errorf("op.Name() = %q, want %q", got, want)
	}

	want := &databasepb.CreateBackupRequest{
		Parent:   testBackupID.InstanceName(),
		BackupId: testBackupID.Backup,
		Backup: &databasepb.Backup{
			Database:   testDatabaseID.Name(),
			ExpireTime: timestamppb.New(expireTime),
		},
	}
	if diff := cmp.Diff(want, mockDatabaseAdmin.reqs[0], protocmp.Transform()); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}

	meta, err := op.Metadata()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := meta.GetDatabase(), testDatabaseID.Name(); got != want {
		t.Errorf("metadata database = %q, want %q", got, want)
	}
}

func TestStartBackupOperationInvalidDatabase(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	if _, err := c.StartBackupOperation(ctx, "test-bck", "test-db", time.Now()); err == nil {
		t.Error("StartBackupOperation succeeded with a bare database ID, want error")
	}
	if len(mockDatabaseAdmin.reqs) != 0 {
		t.Errorf("server received %d requests, want 0", len(mockDatabaseAdmin.reqs))
	}
}

func TestCreateBackupOperationError(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	opName := testBackupID.Name() + "/operations/1"
	meta := &databasepb.CreateBackupMetadata{Name: testBackupID.Name(), Database: testDatabaseID.Name()}
	mockDatabaseAdmin.resps = []proto.Message{pendingOp(t, opName, meta)}
	mockOperations.resps = []proto.Message{
		failedOp(t, opName, meta, codes.PermissionDenied, "backup permission denied"),
	}

	op, err := c.StartBackupOperation(ctx, testBackupID.Backup, testDatabaseID.Name(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	_, err = op.Wait(ctx)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("Wait() = %v, want PermissionDenied", err)
	}
	if !op.Done() {
		t.Error("op.Done() = false after failed Wait")
	}
}

func TestUpdateBackupExpireTime(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	expireTime := time.Now().Add(14 * 24 * time.Hour).Truncate(time.Microsecond)
	mockDatabaseAdmin.resps = []proto.Message{
		&databasepb.Backup{
			Name:       testBackupID.Name(),
			Database:   testDatabaseID.Name(),
			ExpireTime: timestamppb.New(expireTime),
			State:      databasepb.Backup_READY,
		},
	}

	resp, err := c.UpdateBackupExpireTime(ctx, testBackupID, expireTime)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.GetExpireTime().AsTime(); !got.Equal(expireTime) {
		t.Errorf("expire time = %v, want %v", got, expireTime)
	}

	req := mockDatabaseAdmin.reqs[0].(*databasepb.UpdateBackupRequest)
	if got, want := len(req.GetUpdateMask().GetPaths()), 1; got != want {
		t.Fatalf("update mask has %d paths, want %d", got, want)
	}
	if got, want := req.GetUpdateMask().GetPaths()[0], "expire_time"; got != want {
		t.Errorf("update mask path = %q, want %q", got, want)
	}
}

func TestRestoreDatabaseFromBackup(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	target := DatabaseID{Project: "my-project", Instance: "my-instance", Database: "restored-test-db"}
	opName := target.Name() + "/operations/1"
	meta := &databasepb.RestoreDatabaseMetadata{
		Name:       target.Name(),
		SourceType: databasepb.RestoreSourceType_BACKUP,
	}
	mockDatabaseAdmin.resps = []proto.Message{pendingOp(t, opName, meta)}

	op, err := c.RestoreDatabaseFromBackup(ctx, testBackupID, target)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := op.Name(), opName; got != want {
		t.Errorf("op.Name() = %q, want %q", got, want)
	}

	want := &databasepb.RestoreDatabaseRequest{
		Parent:     target.InstanceName(),
		DatabaseId: target.Database,
		Source: &databasepb.RestoreDatabaseRequest_Backup{
			Backup: testBackupID.Name(),
		},
	}
	if got := mockDatabaseAdmin.reqs[0]; !proto.Equal(got, want) {
		t.Errorf("request = %v, want %v", got, want)
	}
}

func TestCancelOperation(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	opName := testBackupID.Name() + "/operations/1"
	mockOperations.resps = []proto.Message{&emptypb.Empty{}}

	if err := c.CancelOperation(ctx, opName); err != nil {
		t.Fatal(err)
	}
	req := mockOperations.reqs[0].(*longrunningpb.CancelOperationRequest)
	if got, want := req.GetName(), opName; got != want {
		t.Errorf("cancel name = %q, want %q", got, want)
	}
}
