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

// Package admintest contains an in-memory fake of the database admin API for
// testing clients of the spanneradmin package.
//
// The fake keeps databases, backups and operations in memory. Operations
// start in a non-terminal state and advance when they are polled: each
// GetOperation call counts down a configurable number of polls, after which
// the operation completes and its effects (a database becoming ready, a
// backup being written) are applied. This exercises a client's polling loop
// deterministically without timers.
//
// Filters are opaque to the real service's clients, so the fake does not
// implement the filter grammar. Tests declare the expected result set for a
// filter up front with AddFilterMatches; a plain name:<substring> filter is
// additionally matched directly. All state lives in the Server value, so
// concurrent tests can each run their own fake.
package admintest

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	databasepb "cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
	statuspb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Server is an in-memory fake database admin server.
//
// It exposes the DatabaseAdmin and Operations gRPC services on a local
// listener. Use Addr to connect a client.
type Server struct {
	// Addr is the address the server is listening on.
	Addr string

	l    net.Listener
	gsrv *grpc.Server
	s    *server
}

// NewServer creates a new Server and starts serving on a local address.
// The caller should call Close when done.
func NewServer() (*Server, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return nil, err
	}
	srv := &Server{
		Addr: l.Addr().String(),
		l:    l,
		gsrv: grpc.NewServer(),
		s:    newServer(),
	}
	databasepb.RegisterDatabaseAdminServer(srv.gsrv, srv.s)
	longrunningpb.RegisterOperationsServer(srv.gsrv, srv.s)
	go srv.gsrv.Serve(l)
	return srv, nil
}

// Close shuts down the server.
func (s *Server) Close() {
	s.gsrv.Stop()
	s.l.Close()
}

// Reset drops all databases, backups, operations and filter fixtures. The
// polls-to-complete setting is kept.
func (s *Server) Reset() {
	st := s.s
	st.mu.Lock()
	defer st.mu.Unlock()
	st.databases = make(map[string]*databasepb.Database)
	st.ddl = make(map[string][]string)
	st.backups = make(map[string]*databasepb.Backup)
	st.ops = make(map[string]*fakeOp)
	st.dbOpNames = nil
	st.backupOpNames = nil
	st.dbNames = nil
	st.backupNames = nil
	st.filterMatches = make(map[string][]string)
	st.nextOpID = 0
}

// SetPollsToComplete sets the number of GetOperation calls after which a new
// operation completes. The default is 1: the first poll observes the
// terminal state. Operations already created keep their countdown.
func (s *Server) SetPollsToComplete(n int) {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	s.s.pollsToComplete = n
}

// AddFilterMatches declares the result set for a filter expression: a listing
// call passing exactly this filter returns the resources or operations with
// the given names, in listing order. The fake does not interpret filters
// beyond simple name:<substring> expressions.
func (s *Server) AddFilterMatches(filter string, names ...string) {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	s.s.filterMatches[filter] = append(s.s.filterMatches[filter], names...)
}

type fakeOp struct {
	proto     *longrunningpb.Operation
	pollsLeft int
	// complete applies the operation's effects and fills in the terminal
	// proto state. It runs with the server lock held.
	complete func(op *fakeOp)
}

type server struct {
	databasepb.UnimplementedDatabaseAdminServer
	longrunningpb.UnimplementedOperationsServer

	mu sync.Mutex

	databases map[string]*databasepb.Database
	ddl       map[string][]string
	backups   map[string]*databasepb.Backup
	ops       map[string]*fakeOp

	// Listing order for database- and backup-scoped operations.
	dbOpNames     []string
	backupOpNames []string
	// Listing order for databases and backups.
	dbNames     []string
	backupNames []string

	filterMatches   map[string][]string
	pollsToComplete int
	nextOpID        int
}

func newServer() *server {
	return &server{
		databases:       make(map[string]*databasepb.Database),
		ddl:             make(map[string][]string),
		backups:         make(map[string]*databasepb.Backup),
		ops:             make(map[string]*fakeOp),
		filterMatches:   make(map[string][]string),
		pollsToComplete: 1,
	}
}

var createDBStatementRegexp = regexp.MustCompile(`(?is)^\s*CREATE\s+DATABASE\s+(.+?)\s*$`)

func extractDBName(createStatement string) string {
	m := createDBStatementRegexp.FindStringSubmatch(createStatement)
	if m == nil {
		return ""
	}
	return strings.Trim(m[1], "`")
}

// newOp registers a new pending operation named under parent. The server
// lock must be held.
func (s *server) newOp(parent string, meta proto.Message, complete func(op *fakeOp)) (*fakeOp, error) {
	s.nextOpID++
	name := fmt.Sprintf("%s/operations/_auto%d", parent, s.nextOpID)
	return s.newNamedOp(name, meta, complete)
}

func (s *server) newNamedOp(name string, meta proto.Message, complete func(op *fakeOp)) (*fakeOp, error) {
	any, err := anypb.New(meta)
	if err != nil {
		return nil, err
	}
	op := &fakeOp{
		proto: &longrunningpb.Operation{
			Name:     name,
			Metadata: any,
		},
		pollsLeft: s.pollsToComplete,
		complete:  complete,
	}
	s.ops[name] = op
	return op, nil
}

// failOp makes the operation complete with the given error.
func failOp(c codes.Code, format string, a ...interface{}) func(op *fakeOp) {
	return func(op *fakeOp) {
		op.proto.Result = &longrunningpb.Operation_Error{
			Error: &statuspb.Status{
				Code:    int32(c),
				Message: fmt.Sprintf(format, a...),
			},
		}
	}
}

func respondOp(op *fakeOp, resp proto.Message) {
	any, err := anypb.New(resp)
	if err != nil {
		// A response that cannot be marshaled is a bug in the fake.
		panic(err)
	}
	op.proto.Result = &longrunningpb.Operation_Response{Response: any}
}

func (s *server) CreateDatabase(ctx context.Context, req *databasepb.CreateDatabaseRequest) (*longrunningpb.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dbID := extractDBName(req.GetCreateStatement())
	if dbID == "" {
		return nil, status.Errorf(codes.InvalidArgument, "not a CREATE DATABASE statement: %q", req.GetCreateStatement())
	}
	name := fmt.Sprintf("%s/databases/%s", req.GetParent(), dbID)
	var complete func(op *fakeOp)
	if _, ok := s.databases[name]; ok {
		complete = failOp(codes.AlreadyExists, "database %s already exists", name)
	} else {
		db := &databasepb.Database{
			Name:  name,
			State: databasepb.Database_CREATING,
		}
		s.databases[name] = db
		s.dbNames = append(s.dbNames, name)
		s.ddl[name] = append([]string(nil), req.GetExtraStatements()...)
		complete = func(op *fakeOp) {
			db.State = databasepb.Database_READY
			db.CreateTime = timestamppb.Now()
			respondOp(op, db)
		}
	}
	op, err := s.newOp(name, &databasepb.CreateDatabaseMetadata{Database: name}, complete)
	if err != nil {
		return nil, err
	}
	s.dbOpNames = append(s.dbOpNames, op.proto.GetName())
	return proto.Clone(op.proto).(*longrunningpb.Operation), nil
}

func (s *server) GetDatabase(ctx context.Context, req *databasepb.GetDatabaseRequest) (*databasepb.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.databases[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "database %s not found", req.GetName())
	}
	return proto.Clone(db).(*databasepb.Database), nil
}

func (s *server) DropDatabase(ctx context.Context, req *databasepb.DropDatabaseRequest) (*emptypb.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.databases[req.GetDatabase()]; !ok {
		return nil, status.Errorf(codes.NotFound, "database %s not found", req.GetDatabase())
	}
	delete(s.databases, req.GetDatabase())
	delete(s.ddl, req.GetDatabase())
	s.dbNames = remove(s.dbNames, req.GetDatabase())
	return &emptypb.Empty{}, nil
}

func (s *server) GetDatabaseDdl(ctx context.Context, req *databasepb.GetDatabaseDdlRequest) (*databasepb.GetDatabaseDdlResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.databases[req.GetDatabase()]; !ok {
		return nil, status.Errorf(codes.NotFound, "database %s not found", req.GetDatabase())
	}
	return &databasepb.GetDatabaseDdlResponse{
		Statements: append([]string(nil), s.ddl[req.GetDatabase()]...),
	}, nil
}

func (s *server) UpdateDatabaseDdl(ctx context.Context, req *databasepb.UpdateDatabaseDdlRequest) (*longrunningpb.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dbName := req.GetDatabase()
	if _, ok := s.databases[dbName]; !ok {
		return nil, status.Errorf(codes.NotFound, "database %s not found", dbName)
	}
	meta := &databasepb.UpdateDatabaseDdlMetadata{
		Database:   dbName,
		Statements: req.GetStatements(),
	}
	complete := func(op *fakeOp) {
		s.ddl[dbName] = append(s.ddl[dbName], req.GetStatements()...)
		respondOp(op, &emptypb.Empty{})
	}
	var op *fakeOp
	var err error
	if id := req.GetOperationId(); id != "" {
		name := fmt.Sprintf("%s/operations/%s", dbName, id)
		if _, ok := s.ops[name]; ok {
			return nil, status.Errorf(codes.AlreadyExists, "operation %s already exists", name)
		}
		op, err = s.newNamedOp(name, meta, complete)
	} else {
		op, err = s.newOp(dbName, meta, complete)
	}
	if err != nil {
		return nil, err
	}
	s.dbOpNames = append(s.dbOpNames, op.proto.GetName())
	return proto.Clone(op.proto).(*longrunningpb.Operation), nil
}

func (s *server) ListDatabases(ctx context.Context, req *databasepb.ListDatabasesRequest) (*databasepb.ListDatabasesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, name := range s.dbNames {
		if strings.HasPrefix(name, req.GetParent()+"/") {
			names = append(names, name)
		}
	}
	page, next, err := paginate(names, req.GetPageSize(), req.GetPageToken())
	if err != nil {
		return nil, err
	}
	resp := &databasepb.ListDatabasesResponse{NextPageToken: next}
	for _, name := range page {
		resp.Databases = append(resp.Databases, proto.Clone(s.databases[name]).(*databasepb.Database))
	}
	return resp, nil
}

func (s *server) CreateBackup(ctx context.Context, req *databasepb.CreateBackupRequest) (*longrunningpb.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.GetBackup().GetExpireTime() == nil {
		return nil, status.Error(codes.InvalidArgument, "backup must have an expire time")
	}
	name := fmt.Sprintf("%s/backups/%s", req.GetParent(), req.GetBackupId())
	dbName := req.GetBackup().GetDatabase()
	var complete func(op *fakeOp)
	if _, ok := s.backups[name]; ok {
		complete = failOp(codes.AlreadyExists, "backup %s already exists", name)
	} else if _, ok := s.databases[dbName]; !ok {
		complete = failOp(codes.NotFound, "database %s not found", dbName)
	} else {
		bk := &databasepb.Backup{
			Name:       name,
			Database:   dbName,
			ExpireTime: req.GetBackup().GetExpireTime(),
			State:      databasepb.Backup_CREATING,
		}
		s.backups[name] = bk
		s.backupNames = append(s.backupNames, name)
		complete = func(op *fakeOp) {
			bk.State = databasepb.Backup_READY
			bk.CreateTime = timestamppb.Now()
			bk.SizeBytes = int64(len(bk.GetDatabase())) * 1024
			var meta databasepb.CreateBackupMetadata
			if op.proto.GetMetadata().UnmarshalTo(&meta) == nil {
				meta.Progress = &databasepb.OperationProgress{ProgressPercent: 100}
				if any, err := anypb.New(&meta); err == nil {
					op.proto.Metadata = any
				}
			}
			respondOp(op, bk)
		}
	}
	meta := &databasepb.CreateBackupMetadata{
		Name:     name,
		Database: dbName,
		Progress: &databasepb.OperationProgress{ProgressPercent: 0},
	}
	op, err := s.newOp(name, meta, complete)
	if err != nil {
		return nil, err
	}
	s.backupOpNames = append(s.backupOpNames, op.proto.GetName())
	return proto.Clone(op.proto).(*longrunningpb.Operation), nil
}

func (s *server) GetBackup(ctx context.Context, req *databasepb.GetBackupRequest) (*databasepb.Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bk, ok := s.backups[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "backup %s not found", req.GetName())
	}
	return proto.Clone(bk).(*databasepb.Backup), nil
}

func (s *server) UpdateBackup(ctx context.Context, req *databasepb.UpdateBackupRequest) (*databasepb.Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bk, ok := s.backups[req.GetBackup().GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "backup %s not found", req.GetBackup().GetName())
	}
	for _, path := range req.GetUpdateMask().GetPaths() {
		switch path {
		case "expire_time":
			bk.ExpireTime = req.GetBackup().GetExpireTime()
		default:
			return nil, status.Errorf(codes.InvalidArgument, "field %s is not updatable", path)
		}
	}
	return proto.Clone(bk).(*databasepb.Backup), nil
}

func (s *server) DeleteBackup(ctx context.Context, req *databasepb.DeleteBackupRequest) (*emptypb.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.backups[req.GetName()]; !ok {
		return nil, status.Errorf(codes.NotFound, "backup %s not found", req.GetName())
	}
	delete(s.backups, req.GetName())
	s.backupNames = remove(s.backupNames, req.GetName())
	return &emptypb.Empty{}, nil
}

func (s *server) ListBackups(ctx context.Context, req *databasepb.ListBackupsRequest) (*databasepb.ListBackupsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, name := range s.backupNames {
		if !strings.HasPrefix(name, req.GetParent()+"/") {
			continue
		}
		if !s.matchesFilter(req.GetFilter(), name) {
			continue
		}
		names = append(names, name)
	}
	page, next, err := paginate(names, req.GetPageSize(), req.GetPageToken())
	if err != nil {
		return nil, err
	}
	resp := &databasepb.ListBackupsResponse{NextPageToken: next}
	for _, name := range page {
		resp.Backups = append(resp.Backups, proto.Clone(s.backups[name]).(*databasepb.Backup))
	}
	return resp, nil
}

func (s *server) RestoreDatabase(ctx context.Context, req *databasepb.RestoreDatabaseRequest) (*longrunningpb.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := fmt.Sprintf("%s/databases/%s", req.GetParent(), req.GetDatabaseId())
	backupName := req.GetBackup()
	var complete func(op *fakeOp)
	if _, ok := s.backups[backupName]; !ok {
		complete = failOp(codes.NotFound, "backup %s not found", backupName)
	} else if _, ok := s.databases[target]; ok {
		complete = failOp(codes.AlreadyExists, "database %s already exists", target)
	} else {
		db := &databasepb.Database{
			Name:  target,
			State: databasepb.Database_CREATING,
		}
		s.databases[target] = db
		s.dbNames = append(s.dbNames, target)
		complete = func(op *fakeOp) {
			db.State = databasepb.Database_READY
			db.CreateTime = timestamppb.Now()
			respondOp(op, db)
			s.startOptimize(op, target)
		}
	}
	s.nextOpID++
	optimizeName := fmt.Sprintf("%s/operations/_auto%d_optimize", target, s.nextOpID)
	meta := &databasepb.RestoreDatabaseMetadata{
		Name:                          target,
		SourceType:                    databasepb.RestoreSourceType_BACKUP,
		OptimizeDatabaseOperationName: optimizeName,
		Progress:                      &databasepb.OperationProgress{ProgressPercent: 0},
	}
	op, err := s.newOp(target, meta, complete)
	if err != nil {
		return nil, err
	}
	s.dbOpNames = append(s.dbOpNames, op.proto.GetName())
	return proto.Clone(op.proto).(*longrunningpb.Operation), nil
}

// startOptimize registers the follow-up optimize operation for a finished
// restore. The operation is listed under the restored database's name.
func (s *server) startOptimize(restore *fakeOp, dbName string) {
	var meta databasepb.RestoreDatabaseMetadata
	if err := restore.proto.GetMetadata().UnmarshalTo(&meta); err != nil {
		return
	}
	db := s.databases[dbName]
	op, err := s.newNamedOp(meta.GetOptimizeDatabaseOperationName(), &databasepb.OptimizeRestoredDatabaseMetadata{
		Name:     dbName,
		Progress: &databasepb.OperationProgress{ProgressPercent: 0},
	}, func(op *fakeOp) {
		var m databasepb.OptimizeRestoredDatabaseMetadata
		if op.proto.GetMetadata().UnmarshalTo(&m) == nil {
			m.Progress = &databasepb.OperationProgress{ProgressPercent: 100}
			if any, err := anypb.New(&m); err == nil {
				op.proto.Metadata = any
			}
		}
		respondOp(op, db)
	})
	if err != nil {
		return
	}
	s.dbOpNames = append(s.dbOpNames, op.proto.GetName())
}

func (s *server) listOperationsLocked(names []string, parent, filter string, pageSize int32, pageToken string) ([]*longrunningpb.Operation, string, error) {
	var matched []string
	for _, name := range names {
		if !strings.HasPrefix(name, parent+"/") {
			continue
		}
		if !s.matchesFilter(filter, name) {
			continue
		}
		matched = append(matched, name)
	}
	page, next, err := paginate(matched, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}
	var ops []*longrunningpb.Operation
	for _, name := range page {
		ops = append(ops, proto.Clone(s.ops[name].proto).(*longrunningpb.Operation))
	}
	return ops, next, nil
}

func (s *server) ListDatabaseOperations(ctx context.Context, req *databasepb.ListDatabaseOperationsRequest) (*databasepb.ListDatabaseOperationsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops, next, err := s.listOperationsLocked(s.dbOpNames, req.GetParent(), req.GetFilter(), req.GetPageSize(), req.GetPageToken())
	if err != nil {
		return nil, err
	}
	return &databasepb.ListDatabaseOperationsResponse{Operations: ops, NextPageToken: next}, nil
}

func (s *server) ListBackupOperations(ctx context.Context, req *databasepb.ListBackupOperationsRequest) (*databasepb.ListBackupOperationsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops, next, err := s.listOperationsLocked(s.backupOpNames, req.GetParent(), req.GetFilter(), req.GetPageSize(), req.GetPageToken())
	if err != nil {
		return nil, err
	}
	return &databasepb.ListBackupOperationsResponse{Operations: ops, NextPageToken: next}, nil
}

func (s *server) GetOperation(ctx context.Context, req *longrunningpb.GetOperationRequest) (*longrunningpb.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "operation %s not found", req.GetName())
	}
	if !op.proto.GetDone() {
		op.pollsLeft--
		if op.pollsLeft <= 0 {
			op.complete(op)
			op.proto.Done = true
		}
	}
	return proto.Clone(op.proto).(*longrunningpb.Operation), nil
}

func (s *server) CancelOperation(ctx context.Context, req *longrunningpb.CancelOperationRequest) (*emptypb.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "operation %s not found", req.GetName())
	}
	// An operation that already completed stays completed; cancellation is
	// best effort and this race is expected.
	if !op.proto.GetDone() {
		op.proto.Done = true
		op.proto.Result = &longrunningpb.Operation_Error{
			Error: &statuspb.Status{
				Code:    int32(codes.Canceled),
				Message: "operation cancelled at caller's request",
			},
		}
		// A cancelled backup creation removes the pending backup.
		var meta databasepb.CreateBackupMetadata
		if op.proto.GetMetadata().UnmarshalTo(&meta) == nil && meta.GetName() != "" {
			if bk, ok := s.backups[meta.GetName()]; ok && bk.GetState() == databasepb.Backup_CREATING {
				delete(s.backups, meta.GetName())
				s.backupNames = remove(s.backupNames, meta.GetName())
			}
		}
	}
	return &emptypb.Empty{}, nil
}

// matchesFilter reports whether the named resource or operation matches the
// filter. The empty filter matches everything. A filter registered with
// AddFilterMatches matches exactly the declared names; otherwise only
// name:<substring> filters are understood.
func (s *server) matchesFilter(filter, name string) bool {
	if filter == "" {
		return true
	}
	if matches, ok := s.filterMatches[filter]; ok {
		for _, m := range matches {
			if m == name {
				return true
			}
		}
		return false
	}
	if sub, ok := strings.CutPrefix(filter, "name:"); ok && !strings.Contains(sub, " ") {
		return strings.Contains(name, sub)
	}
	return false
}

func paginate(names []string, pageSize int32, pageToken string) (page []string, next string, err error) {
	start := 0
	if pageToken != "" {
		start, err = strconv.Atoi(pageToken)
		if err != nil || start < 0 || start > len(names) {
			return nil, "", status.Errorf(codes.InvalidArgument, "bad page token %q", pageToken)
		}
	}
	end := len(names)
	if pageSize > 0 && start+int(pageSize) < end {
		end = start + int(pageSize)
		next = strconv.Itoa(end)
	}
	return names[start:end], next, nil
}

func remove(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
